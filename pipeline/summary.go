package pipeline

import "sort"

// GroupCount количество компаний в группе
type GroupCount struct {
	Group string `json:"group"`
	Count int    `json:"count"`
}

// BatchSummary сводка по пакету
type BatchSummary struct {
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Groups    []GroupCount   `json:"groups"`
	Methods   map[string]int `json:"methods"`
}

// Summarize считает сводку. Группы отсортированы по убыванию количества, затем по имени.
func Summarize(records []*BatchRecord) BatchSummary {
	summary := BatchSummary{
		Total:   len(records),
		Groups:  []GroupCount{},
		Methods: make(map[string]int),
	}

	counts := make(map[string]int)
	for _, r := range records {
		if !r.Succeeded() {
			summary.Failed++
			continue
		}
		summary.Succeeded++
		counts[r.Assignment.GroupName]++
		summary.Methods[r.Assignment.Method.Kind.String()]++
	}

	for group, count := range counts {
		summary.Groups = append(summary.Groups, GroupCount{Group: group, Count: count})
	}
	sort.Slice(summary.Groups, func(i, j int) bool {
		if summary.Groups[i].Count != summary.Groups[j].Count {
			return summary.Groups[i].Count > summary.Groups[j].Count
		}
		return summary.Groups[i].Group < summary.Groups[j].Group
	})

	return summary
}
