package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// RoomCodeChars 房间码字符集（去掉容易混淆的 I 和 O）
const RoomCodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ"

// GenerateRoomCode 生成随机房间码
func GenerateRoomCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("房间码长度无效: %d", length)
	}

	code := make([]byte, length)
	max := big.NewInt(int64(len(RoomCodeChars)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("生成房间码失败: %w", err)
		}
		code[i] = RoomCodeChars[n.Int64()]
	}
	return string(code), nil
}

// UniqueRoomCode 生成未被占用的房间码
func UniqueRoomCode(length, attempts int, exists func(code string) bool) (string, error) {
	for i := 0; i < attempts; i++ {
		code, err := GenerateRoomCode(length)
		if err != nil {
			return "", err
		}
		if !exists(code) {
			return code, nil
		}
	}
	return "", fmt.Errorf("%d次尝试后仍未找到可用的房间码", attempts)
}
