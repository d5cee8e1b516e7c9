package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var viperMutex sync.Mutex

// Watch перечитує файл конфігурації при зміні та викликає onChange з новим значенням.
// Без файлу (лише env) нічого не робить.
func Watch(v *viper.Viper, log *zap.Logger, onChange func(*Config)) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		viperMutex.Lock()
		cfg, err := decode(v)
		viperMutex.Unlock()
		if err != nil {
			log.Warn("Нова конфігурація невалідна, залишаємо попередню", zap.String("file", e.Name), zap.Error(err))
			return
		}
		log.Info("Конфігурацію перечитано", zap.String("file", e.Name))
		onChange(cfg)
	})
	v.WatchConfig()
}
