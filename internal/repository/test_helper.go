package repository

import (
	"fmt"
	"time"

	"github.com/wfunc/imposter-game/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB 创建迁移好的内存数据库（测试使用）
func SetupTestDB() *gorm.DB {
	// 每次使用独立的内存库，避免测试之间相互影响
	dsn := fmt.Sprintf("file:test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(err)
	}

	if err := db.AutoMigrate(&models.GameRecord{}, &models.GameRecordPlayer{}); err != nil {
		panic(err)
	}

	return db
}

// CleanupTestDB 清理测试数据
func CleanupTestDB(db *gorm.DB) {
	db.Exec("DELETE FROM game_record_players")
	db.Exec("DELETE FROM game_records")
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

// NewTestRecord 创建测试对局记录
func NewTestRecord(roomCode, winner string, rounds int, endedAt time.Time) *models.GameRecord {
	return &models.GameRecord{
		RoomCode:      roomCode,
		Winner:        winner,
		Reason:        "test",
		Rounds:        rounds,
		PlayerCount:   3,
		ImposterCount: 1,
		Settings:      models.JSONMap{"max_rounds": 5},
		StartedAt:     endedAt.Add(-time.Minute),
		EndedAt:       endedAt,
		Duration:      60,
		Players: []models.GameRecordPlayer{
			{PlayerID: "p1", Name: "Alice", IsImposter: true},
			{PlayerID: "p2", Name: "Bob"},
			{PlayerID: "p3", Name: "Carol", IsEliminated: true},
		},
	}
}
