package enrichment

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"grupoeconomico/internal/infrastructure/monitoring"
)

// Имена сервисов реестра в конфигурации
const (
	ServiceReceitaWS = "receitaws"
	ServiceBrasilAPI = "brasilapi"
)

// RegistryLookup последовательно опрашивает сервисы реестра с учетом кэша
type RegistryLookup struct {
	enrichers []Enricher
	cache     *IdentityCache
	logger    *zap.Logger
	metrics   *monitoring.Metrics
}

// NewRegistryLookup создает поиск по заданным сервисам.
// cache обязателен: он ограничивает область жизни данных одной сессией.
func NewRegistryLookup(enrichers []Enricher, cache *IdentityCache, logger *zap.Logger, metrics *monitoring.Metrics) *RegistryLookup {
	if cache == nil {
		cache = NewIdentityCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	lookup := &RegistryLookup{
		enrichers: append([]Enricher(nil), enrichers...),
		cache:     cache,
		logger:    logger.Named("enrichment"),
		metrics:   metrics,
	}
	lookup.sortByPriority()
	return lookup
}

// NewRegistryLookupFromConfig создает сервисы по конфигурации.
// Порядок по умолчанию: ReceitaWS, затем BrasilAPI.
func NewRegistryLookupFromConfig(configs map[string]*EnricherConfig, cache *IdentityCache, logger *zap.Logger, metrics *monitoring.Metrics) *RegistryLookup {
	var enrichers []Enricher

	if config, exists := configs[ServiceReceitaWS]; exists && config.Enabled {
		enrichers = append(enrichers, NewReceitaWSEnricher(config))
	}

	if config, exists := configs[ServiceBrasilAPI]; exists && config.Enabled {
		enrichers = append(enrichers, NewBrasilAPIEnricher(config))
	}

	return NewRegistryLookup(enrichers, cache, logger, metrics)
}

// Lookup возвращает данные компании по CNPJ в любом формате записи.
// Возвращает ErrInvalidCNPJ для некорректного идентификатора и ErrNotFound,
// если ни один сервис не дал пригодных данных.
func (l *RegistryLookup) Lookup(ctx context.Context, raw string) (*CompanyIdentity, error) {
	cnpj := NormalizeCNPJ(raw)
	if !ValidateCNPJ(cnpj) {
		return nil, eris.Wrapf(ErrInvalidCNPJ, "%q", raw)
	}

	if cached, found := l.cache.Get(cnpj); found {
		l.metrics.CacheHit()
		l.logger.Debug("Identity cache hit", zap.String("cnpj", cnpj))
		return cached, nil
	}
	l.metrics.CacheMiss()

	var failures []string
	for _, enricher := range l.enrichers {
		if !enricher.IsAvailable() {
			continue
		}

		identity, err := enricher.Enrich(ctx, cnpj)
		if err == nil && !identity.Usable() {
			err = eris.Errorf("%s: response without company name", enricher.GetName())
		}
		l.metrics.ObserveRegistryLookup(enricher.GetName(), err == nil)

		if err != nil {
			failures = append(failures, err.Error())
			l.logger.Debug("Registry service failed",
				zap.String("service", enricher.GetName()),
				zap.String("cnpj", cnpj),
				zap.Error(err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		l.cache.Put(cnpj, identity)
		return identity, nil
	}

	if len(failures) == 0 {
		return nil, eris.Wrapf(ErrNotFound, "%s: no registry services available", cnpj)
	}
	return nil, eris.Wrapf(ErrNotFound, "%s: %s", cnpj, strings.Join(failures, "; "))
}

// Cache возвращает кэш сессии
func (l *RegistryLookup) Cache() *IdentityCache {
	return l.cache
}

// GetAvailableServices возвращает список доступных сервисов в порядке опроса
func (l *RegistryLookup) GetAvailableServices() []string {
	var services []string
	for _, enricher := range l.enrichers {
		if enricher.IsAvailable() {
			services = append(services, enricher.GetName())
		}
	}
	return services
}

func (l *RegistryLookup) sortByPriority() {
	sort.SliceStable(l.enrichers, func(i, j int) bool {
		return l.enrichers[i].GetPriority() < l.enrichers[j].GetPriority()
	})
}
