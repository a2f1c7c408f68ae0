package config

import (
	"github.com/fsnotify/fsnotify"
)

// Watch 监听配置文件变化，每次成功重新解析后回调 onChange；解析失败时回调 onError。
// 仅日志级别等可热更新的字段应在回调中生效，缓存目录与端口需要重启。
func Watch(path string, onChange func(*Config), onError func(error)) error {
	v, err := newViper(path)
	if err != nil {
		return err
	}

	v.OnConfigChange(func(event fsnotify.Event) {
		if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		if onChange != nil {
			onChange(cfg)
		}
	})
	v.WatchConfig()
	return nil
}
