package model

import (
	"fmt"
	"time"
)

// LocalTime 以 "2006-01-02 15:04:05" 格式序列化时间，
// 供文档状态 DTO 的 createdAt/updatedAt 等对外字段使用。
type LocalTime time.Time

const timeFormat = "2006-01-02 15:04:05"

// MarshalJSON 按统一格式输出 JSON 字符串。
func (t LocalTime) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", time.Time(t).Format(timeFormat))), nil
}

// String 按统一格式输出时间。
func (t LocalTime) String() string {
	return time.Time(t).Format(timeFormat)
}
