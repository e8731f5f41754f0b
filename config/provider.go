// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"errors"
	"fmt"
	"strings"
)

// 提供者加载错误
var (
	ErrNoProviders     = errors.New("config: no providers to choose from")
	ErrUnknownProvider = errors.New("config: unknown provider")
)

// Provider 提供者接口，如设备的采集端、播放端
type Provider interface {
	Name() string
	Configure(config map[string]interface{}) error
}

// ProviderConfig 可扩展提供者配置
type ProviderConfig struct {
	Provider string                 `json:"provider"`         // 提供者名称，不区分大小写
	Config   map[string]interface{} `json:"config,omitempty"` // 提供者配置
}

// Load 从候选中选出并配置提供者
func (c *ProviderConfig) Load(builtins ...Provider) (Provider, error) {
	for _, builtin := range builtins {
		if strings.EqualFold(builtin.Name(), c.Provider) {
			if err := builtin.Configure(c.Config); err != nil {
				return nil, fmt.Errorf("config: configure provider '%s': %w", c.Provider, err)
			}
			return builtin, nil
		}
	}

	return nil, fmt.Errorf("%w '%s' (available: %s)", ErrUnknownProvider, c.Provider, providerNames(builtins))
}

// LoadProvider 按配置加载提供者；未配置时使用第一个候选
func LoadProvider(config *ProviderConfig, providers ...Provider) (Provider, error) {
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	if config == nil || config.Provider == "" {
		config = &ProviderConfig{
			Provider: providers[0].Name(),
		}
	}
	return config.Load(providers...)
}

func providerNames(providers []Provider) string {
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = p.Name()
	}
	return strings.Join(names, ", ")
}
