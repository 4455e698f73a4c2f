package database

import (
	"fmt"

	"github.com/wfunc/imposter-game/internal/logger"
	"github.com/wfunc/imposter-game/internal/models"
	"go.uber.org/zap"
)

// migrationModels 需要迁移的模型
var migrationModels = []interface{}{
	&models.GameRecord{},
	&models.GameRecordPlayer{},
}

// AutoMigrate 自动迁移数据库表结构
func AutoMigrate() error {
	if DB == nil {
		return fmt.Errorf("数据库未初始化")
	}

	dbPath := sqliteFilePath()
	if dbPath != "" {
		CleanupStaleLocks(dbPath)

		lockFile, err := acquireMigrationLock(dbPath)
		if err != nil {
			logger.Error("无法获取迁移锁", zap.Error(err))
			return fmt.Errorf("获取迁移锁失败: %w", err)
		}
		defer releaseMigrationLock(lockFile)
	}

	logger.Info("开始数据库迁移...")

	for _, model := range migrationModels {
		if err := DB.AutoMigrate(model); err != nil {
			logger.Error("迁移失败",
				zap.String("model", fmt.Sprintf("%T", model)),
				zap.Error(err),
			)
			return err
		}
		logger.Debug("迁移成功", zap.String("model", fmt.Sprintf("%T", model)))
	}

	createIndexes()

	logger.Info("数据库迁移完成")
	return nil
}

// createIndexes 创建组合索引，失败只记录警告
func createIndexes() {
	indexes := map[string]string{
		"idx_game_records_winner_ended": "CREATE INDEX IF NOT EXISTS idx_game_records_winner_ended ON game_records(winner, ended_at)",
		"idx_game_record_players_pid":   "CREATE INDEX IF NOT EXISTS idx_game_record_players_pid ON game_record_players(player_id)",
	}

	for name, stmt := range indexes {
		if err := DB.Exec(stmt).Error; err != nil {
			logger.Warn("创建索引失败", zap.String("index", name), zap.Error(err))
		}
	}
}
