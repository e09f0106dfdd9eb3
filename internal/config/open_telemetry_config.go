package config

// OpenTelemetryConfig 存储OpenTelemetry相关配置
type OpenTelemetryConfig struct {
	Enable   bool    `yaml:"enable"`   // 是否启用
	Service  string  `yaml:"service"`  // 服务名称
	Endpoint string  `yaml:"endpoint"` // OTLP上报地址
	Protocol string  `yaml:"protocol"` // grpc 或 http/protobuf
	Sampling float64 `yaml:"sampling"` // 采样率（0.0-1.0）
}

// 默认OpenTelemetry配置
func NewOpenTelemetryConfig() OpenTelemetryConfig {
	return OpenTelemetryConfig{
		Enable:   false,
		Service:  "rbac-engine",
		Endpoint: "localhost:4317",
		Protocol: "grpc",
		Sampling: 0.1,
	}
}
