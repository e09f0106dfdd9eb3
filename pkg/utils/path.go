package utils

import (
	"os"
	"path/filepath"
)

// GetAbsPath 将相对项目根目录的路径转换为绝对路径
// 从当前工作目录向上查找 go.mod 所在目录作为项目根，找不到时退回工作目录
func GetAbsPath(relPath string) string {
	if filepath.IsAbs(relPath) {
		return relPath
	}
	wd, err := os.Getwd()
	if err != nil {
		return relPath
	}
	for dir := wd; ; dir = filepath.Dir(dir) {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return filepath.Join(dir, relPath)
		}
		if filepath.Dir(dir) == dir {
			break
		}
	}
	return filepath.Join(wd, relPath)
}
