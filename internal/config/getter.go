package config

import (
	"time"

	"github.com/spf13/cast"
)

const (
	KeyVerboseDebug = "components.enable_verbose_debug"

	defaultProxyTimeout = 600 * time.Second
)

// Getter 按 key path 读取配置值，*viper.Viper 满足该接口
type Getter interface {
	Get(key string) any
}

// ProxyConfig is read once per outbound request.
type ProxyConfig struct {
	HTTP    string
	HTTPS   string
	Timeout time.Duration
}

// VerboseDebug reports components.enable_verbose_debug; a nil getter or
// an unparsable value means disabled.
func VerboseDebug(g Getter) bool {
	if g == nil {
		return false
	}
	enabled, err := cast.ToBoolE(g.Get(KeyVerboseDebug))
	if err != nil {
		return false
	}
	return enabled
}

// Proxy 读取 proxy.* 配置，未启用时返回 nil
func Proxy(g Getter) *ProxyConfig {
	if g == nil || !cast.ToBool(g.Get("proxy.enabled")) {
		return nil
	}

	fallback := cast.ToString(g.Get("proxy.url"))
	p := &ProxyConfig{
		HTTP:    cast.ToString(g.Get("proxy.http")),
		HTTPS:   cast.ToString(g.Get("proxy.https")),
		Timeout: defaultProxyTimeout,
	}
	if p.HTTP == "" {
		p.HTTP = fallback
	}
	if p.HTTPS == "" {
		p.HTTPS = fallback
	}
	if p.HTTP == "" && p.HTTPS == "" {
		return nil
	}

	if secs := cast.ToFloat64(g.Get("proxy.timeout")); secs > 0 {
		p.Timeout = time.Duration(secs * float64(time.Second))
	}
	return p
}

// RequestTimeout 有代理时使用代理超时，否则使用默认值
func RequestTimeout(p *ProxyConfig) time.Duration {
	if p != nil && p.Timeout > 0 {
		return p.Timeout
	}
	return defaultProxyTimeout
}
