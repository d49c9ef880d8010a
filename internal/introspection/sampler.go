package introspection

import (
	"sort"

	"github.com/eurisko-info-lab/json-graphql-server/internal/datastore"
)

// Sample holds the non-null values observed for one field across a
// collection, in record order.
type Sample struct {
	Name   string
	Values []any
}

// ValuesFromRecords returns a sample for every field any record defines.
// A field that only ever holds null still gets a sample with no values.
// Samples are ordered with "id" first and the rest alphabetically.
func ValuesFromRecords(records []datastore.Record) []Sample {
	index := make(map[string]int)
	var samples []Sample
	for _, record := range records {
		for _, name := range sortedFieldNames(record) {
			i, ok := index[name]
			if !ok {
				i = len(samples)
				index[name] = i
				samples = append(samples, Sample{Name: name})
			}
			if value := record[name]; value != nil {
				samples[i].Values = append(samples[i].Values, value)
			}
		}
	}

	sort.SliceStable(samples, func(i, j int) bool {
		return fieldLess(samples[i].Name, samples[j].Name)
	})
	return samples
}

func sortedFieldNames(record datastore.Record) []string {
	names := make([]string, 0, len(record))
	for name := range record {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func fieldLess(a, b string) bool {
	if a == "id" || b == "id" {
		return a == "id" && b != "id"
	}
	return a < b
}
