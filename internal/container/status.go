package container

import (
	"grupoeconomico/enrichment"
)

// ProviderStatus состояние AI провайдера
type ProviderStatus struct {
	Name      string   `json:"name"`
	Available bool     `json:"available"`
	Models    []string `json:"models"`
}

// ArbitrationStatus состояние арбитража
type ArbitrationStatus struct {
	Enabled   bool   `json:"enabled"`
	Available bool   `json:"available"`
	Judge     string `json:"judge,omitempty"`
	Fallback  string `json:"fallback,omitempty"`
}

// Status сводка по настроенным сервисам
type Status struct {
	RegistryServices []string              `json:"registry_services"`
	Providers        []ProviderStatus      `json:"providers"`
	Arbitration      ArbitrationStatus     `json:"arbitration"`
	Groups           []string              `json:"groups"`
	Cache            enrichment.CacheStats `json:"cache"`
}

// Status возвращает состояние провайдеров, реестра и кэша
func (c *Container) Status() Status {
	status := Status{
		RegistryServices: c.Lookup.GetAvailableServices(),
		Groups:           c.Groups.Names(),
		Cache:            c.Cache.GetStats(),
		Arbitration: ArbitrationStatus{
			Enabled:  c.Config.Classification.ArbitrationEnabled,
			Fallback: c.Config.Classification.ArbitrationFallback,
		},
	}

	for _, p := range c.Providers {
		status.Providers = append(status.Providers, ProviderStatus{
			Name:      p.Name(),
			Available: p.IsAvailable(),
			Models:    p.Models(),
		})
	}

	if c.Arbitrator != nil {
		status.Arbitration.Available = c.Arbitrator.IsAvailable()
		status.Arbitration.Judge = c.Config.Gemini.JudgeModel
	}

	return status
}
