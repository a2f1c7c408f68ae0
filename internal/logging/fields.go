package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// FetchFields 提供 url/缓存 key/结果字段，供图片 fetch 日志复用。
func FetchFields(url, key, outcome string) logrus.Fields {
	return logrus.Fields{
		"action":    "fetch",
		"url":       url,
		"cache_key": key,
		"outcome":   outcome,
		"cache_hit": outcome == "hit",
	}
}
