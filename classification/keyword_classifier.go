package classification

import (
	"fmt"
	"strings"

	"grupoeconomico/enrichment"
)

// KeywordClassifier классификация по ключевым словам в наименованиях.
// Внешних вызовов не делает.
type KeywordClassifier struct {
	table *KnownGroupTable
}

// NewKeywordClassifier создает классификатор по таблице групп
func NewKeywordClassifier(table *KnownGroupTable) *KeywordClassifier {
	if table == nil {
		table = DefaultGroupTable()
	}
	return &KeywordClassifier{table: table}
}

// Classify ищет первое ключевое слово, входящее в razao social или nome fantasia.
// Группы и слова перебираются в порядке таблицы, первое совпадение побеждает.
func (c *KeywordClassifier) Classify(identity *enrichment.CompanyIdentity) (*GroupAssignment, bool) {
	if identity == nil {
		return nil, false
	}

	legal := Fold(identity.LegalName)
	trade := Fold(identity.TradeName)

	for _, group := range c.table.groups {
		for _, keyword := range group.Keywords {
			if strings.Contains(legal, keyword) || strings.Contains(trade, keyword) {
				return &GroupAssignment{
					GroupName:  group.Name,
					Confidence: RuleConfidence,
					Method:     Method{Kind: MethodRules},
					Rationale:  fmt.Sprintf("keyword match: %s", keyword),
				}, true
			}
		}
	}

	return nil, false
}

// Table возвращает таблицу групп
func (c *KeywordClassifier) Table() *KnownGroupTable {
	return c.table
}
