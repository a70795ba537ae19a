package utils

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ReadQueriesFromFile 从文件中读取搜索关键词列表
// .csv 文件需要包含 query 列;其他文件每行一个关键词,# 开头为注释
// 重复的关键词只保留第一次出现
func ReadQueriesFromFile(path string) ([]string, error) {
	var (
		queries []string
		err     error
	)

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		queries, err = readQueriesCSV(path)
	} else {
		queries, err = readQueriesText(path)
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(queries))
	unique := make([]string, 0, len(queries))
	for _, q := range queries {
		key := strings.ToLower(q)
		if seen[key] {
			Warnf("跳过重复关键词: %s", q)
			continue
		}
		seen[key] = true
		unique = append(unique, q)
	}

	if len(unique) == 0 {
		return nil, fmt.Errorf("关键词文件中没有有效的关键词")
	}

	Infof("从文件加载了 %d 个关键词", len(unique))
	return unique, nil
}

func readQueriesText(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开关键词文件失败: %w", err)
	}
	defer file.Close()

	queries := make([]string, 0)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// 跳过空行和注释行
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		queries = append(queries, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取关键词文件失败: %w", err)
	}
	return queries, nil
}

func readQueriesCSV(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开关键词文件失败: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("解析关键词CSV失败: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("关键词CSV为空")
	}

	col := -1
	for i, h := range rows[0] {
		if strings.EqualFold(strings.TrimSpace(h), "query") {
			col = i
			break
		}
	}
	if col == -1 {
		return nil, fmt.Errorf("关键词CSV必须包含 query 列")
	}

	queries := make([]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if col < len(row) {
			if q := strings.TrimSpace(row[col]); q != "" {
				queries = append(queries, q)
			}
		}
	}
	return queries, nil
}
