package classification

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// KnownGroup экономическая группа и ключевые слова для ее распознавания
type KnownGroup struct {
	Name     string   `yaml:"name" json:"name"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// KnownGroupTable упорядоченная таблица известных групп.
// Порядок групп и ключевых слов определяет приоритет при совпадениях.
// После создания таблица не изменяется.
type KnownGroupTable struct {
	groups  []KnownGroup
	byName  map[string]string
	byAlias map[string]string
}

type groupFile struct {
	Groups []KnownGroup `yaml:"groups"`
}

// DefaultGroups встроенный список групп
var DefaultGroups = []KnownGroup{
	{Name: "AMBEV", Keywords: []string{"ambev", "brahma", "skol", "antarctica", "anheuser"}},
	{Name: "VALE", Keywords: []string{"vale", "samarco"}},
	{Name: "PETROBRAS", Keywords: []string{"petrobras", "br distribuidora"}},
	{Name: "ITAU", Keywords: []string{"itau", "unibanco"}},
	{Name: "BRADESCO", Keywords: []string{"bradesco"}},
	{Name: "JBS", Keywords: []string{"jbs", "friboi", "seara"}},
	{Name: "NATURA", Keywords: []string{"natura", "avon"}},
	{Name: "MAGAZINE LUIZA", Keywords: []string{"magalu", "magazine luiza"}},
	{Name: "SUZANO", Keywords: []string{"suzano"}},
	{Name: "GERDAU", Keywords: []string{"gerdau"}},
}

// NewKnownGroupTable создает таблицу. Имена групп приводятся к верхнему
// регистру, ключевые слова сворачиваются через Fold.
func NewKnownGroupTable(groups []KnownGroup) (*KnownGroupTable, error) {
	if len(groups) == 0 {
		return nil, eris.New("group table is empty")
	}

	table := &KnownGroupTable{
		groups:  make([]KnownGroup, 0, len(groups)),
		byName:  make(map[string]string, len(groups)),
		byAlias: make(map[string]string),
	}

	for i, g := range groups {
		name := strings.ToUpper(strings.Join(strings.Fields(g.Name), " "))
		if name == "" {
			return nil, eris.Errorf("group #%d has empty name", i+1)
		}
		key := foldKey(name)
		if key == foldKey(Independent) {
			return nil, eris.Errorf("group name %q is reserved", Independent)
		}
		if _, exists := table.byName[key]; exists {
			return nil, eris.Errorf("duplicate group %q", name)
		}
		table.byName[key] = name

		keywords := make([]string, 0, len(g.Keywords))
		for _, kw := range g.Keywords {
			kw = foldKey(kw)
			if kw == "" {
				continue
			}
			keywords = append(keywords, kw)
			if _, exists := table.byAlias[kw]; !exists {
				table.byAlias[kw] = name
			}
		}
		if len(keywords) == 0 {
			return nil, eris.Errorf("group %q has no keywords", name)
		}

		table.groups = append(table.groups, KnownGroup{Name: name, Keywords: keywords})
	}

	return table, nil
}

// DefaultGroupTable возвращает таблицу со встроенным списком групп
func DefaultGroupTable() *KnownGroupTable {
	table, err := NewKnownGroupTable(DefaultGroups)
	if err != nil {
		panic(err)
	}
	return table
}

// LoadGroupTable читает таблицу групп из YAML файла вида
//
//	groups:
//	  - name: VALE
//	    keywords: [vale, samarco]
func LoadGroupTable(path string) (*KnownGroupTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read groups file %s", path)
	}

	var file groupFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrapf(err, "failed to parse groups file %s", path)
	}

	table, err := NewKnownGroupTable(file.Groups)
	if err != nil {
		return nil, eris.Wrapf(err, "invalid groups file %s", path)
	}
	return table, nil
}

// Groups возвращает копию групп в порядке приоритета
func (t *KnownGroupTable) Groups() []KnownGroup {
	result := make([]KnownGroup, len(t.groups))
	for i, g := range t.groups {
		result[i] = KnownGroup{Name: g.Name, Keywords: append([]string(nil), g.Keywords...)}
	}
	return result
}

// Names возвращает канонические имена групп в порядке приоритета
func (t *KnownGroupTable) Names() []string {
	names := make([]string, len(t.groups))
	for i, g := range t.groups {
		names[i] = g.Name
	}
	return names
}

// Canonical сопоставляет произвольное имя (ответ модели) с каноническим.
// Сначала сравниваются имена групп, затем ключевые слова целиком.
// INDEPENDENTE всегда распознается.
func (t *KnownGroupTable) Canonical(name string) (string, bool) {
	key := foldKey(name)
	if key == "" {
		return "", false
	}
	if key == foldKey(Independent) {
		return Independent, true
	}
	if canonical, ok := t.byName[key]; ok {
		return canonical, true
	}
	if canonical, ok := t.byAlias[key]; ok {
		return canonical, true
	}
	return "", false
}
