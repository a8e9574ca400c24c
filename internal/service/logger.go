package service

import (
	"log"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 是全局日志接口
// 在其他模块中使用：service.Logger.Info("Order placed", zap.String("order_id", id))
var Logger = zap.NewNop()

// InitLogger 初始化 Zap 日志, level 为空时默认 info
func InitLogger(level string) {
	config := zap.NewProductionConfig()

	// 格式化时间
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.TimeKey = "time"

	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			log.Printf("Unknown log level %q, falling back to info", level)
		} else {
			config.Level = zap.NewAtomicLevelAt(lvl)
		}
	}

	// 如果需要写入文件，可以修改 OutputPaths:
	// config.OutputPaths = []string{"stdout", "log/app.log"}

	var err error
	Logger, err = config.Build()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
}
