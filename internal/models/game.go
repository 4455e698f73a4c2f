package models

import (
	"time"
)

// GameRecord 已结束的对局记录
type GameRecord struct {
	BaseModel
	RoomCode      string    `gorm:"size:16;not null;index" json:"room_code"`
	Winner        string    `gorm:"size:16;index" json:"winner"` // Citizens, Imposters, 空表示无胜者
	Reason        string    `gorm:"size:64" json:"reason"`
	Rounds        int       `gorm:"default:0" json:"rounds"`
	PlayerCount   int       `gorm:"default:0" json:"player_count"`
	ImposterCount int       `gorm:"default:0" json:"imposter_count"`
	Settings      JSONMap   `gorm:"type:text" json:"settings"`
	StartedAt     time.Time `json:"started_at"`
	EndedAt       time.Time `gorm:"index" json:"ended_at"`
	Duration      int       `json:"duration"` // 秒

	// 关联
	Players []GameRecordPlayer `gorm:"foreignKey:GameRecordID" json:"players,omitempty"`
}

// GameRecordPlayer 对局中的玩家
type GameRecordPlayer struct {
	ID           uint   `gorm:"primarykey" json:"id"`
	GameRecordID uint   `gorm:"not null;index" json:"game_record_id"`
	PlayerID     string `gorm:"size:64;not null" json:"player_id"`
	Name         string `gorm:"size:64" json:"name"`
	IsImposter   bool   `json:"is_imposter"`
	IsEliminated bool   `json:"is_eliminated"`
	IsSpectator  bool   `json:"is_spectator"`
}

// TableName 指定表名
func (GameRecord) TableName() string {
	return "game_records"
}

// TableName 指定表名
func (GameRecordPlayer) TableName() string {
	return "game_record_players"
}
