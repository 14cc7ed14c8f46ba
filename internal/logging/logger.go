package logging

import (
    "strings"

    "go.uber.org/zap"
    "go.uber.org/zap/zapcore"
)

// Init builds the process logger. Level falls back to info when the supplied
// string does not parse.
func Init(level, env string) (*zap.Logger, error) {
    lvl := zap.NewAtomicLevel()
    if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
        lvl = zap.NewAtomicLevelAt(zap.InfoLevel)
    }
    var cfg zap.Config
    if strings.ToLower(env) == "prod" {
        cfg = zap.NewProductionConfig()
    } else {
        cfg = zap.NewDevelopmentConfig()
    }
    cfg.Level = lvl
    cfg.EncoderConfig.TimeKey = "ts"
    cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
    return cfg.Build(zap.AddStacktrace(zap.ErrorLevel))
}
