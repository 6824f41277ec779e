package render

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
	"text/tabwriter"
	"time"
)

// renderTable writes a slice as rows with a header line, and a struct or
// map as aligned "key: value" lines.
func (r *Renderer) renderTable(data any) error {
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	v := indirect(reflect.ValueOf(data))
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		writeRows(w, v)
	case reflect.Struct:
		for _, col := range columns(v.Type()) {
			fmt.Fprintf(w, "%s:\t%s\n", col.name, cell(v.Field(col.index)))
		}
	case reflect.Map:
		keys := v.MapKeys()
		slices.SortFunc(keys, func(a, b reflect.Value) int {
			return strings.Compare(fmt.Sprint(a.Interface()), fmt.Sprint(b.Interface()))
		})
		for _, k := range keys {
			fmt.Fprintf(w, "%v:\t%s\n", k.Interface(), cell(v.MapIndex(k)))
		}
	default:
		fmt.Fprintln(w, cell(v))
	}
	return nil
}

// writeRows renders struct elements one per row and anything else one
// value per line.
func writeRows(w *tabwriter.Writer, v reflect.Value) {
	if v.Len() == 0 {
		fmt.Fprintln(w, "(no results)")
		return
	}
	elem := v.Type().Elem()
	if elem.Kind() == reflect.Pointer {
		elem = elem.Elem()
	}
	if elem.Kind() != reflect.Struct {
		for i := range v.Len() {
			fmt.Fprintln(w, cell(v.Index(i)))
		}
		return
	}

	cols := columns(elem)
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.name
	}
	fmt.Fprintln(w, strings.Join(names, "\t"))

	row := make([]string, len(cols))
	for i := range v.Len() {
		item := indirect(v.Index(i))
		for j, col := range cols {
			if item.IsValid() {
				row[j] = cell(item.Field(col.index))
			} else {
				row[j] = ""
			}
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
}

type column struct {
	name  string
	index int
}

// columns lists the exported fields of t, named by their json tag.
// Fields tagged "-" are skipped.
func columns(t reflect.Type) []column {
	var cols []column
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			continue
		case "":
			name = strings.ToLower(f.Name)
		}
		cols = append(cols, column{name: name, index: i})
	}
	return cols
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// cell formats one value. Short string lists are joined; other
// collections are summarized by size.
func cell(v reflect.Value) string {
	v = indirect(v)
	if !v.IsValid() {
		return ""
	}
	if ts, ok := v.Interface().(time.Time); ok {
		return ts.Format(time.RFC3339)
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "[]"
		}
		if strs, ok := v.Interface().([]string); ok && len(strs) <= 3 {
			return strings.Join(strs, ",")
		}
		return fmt.Sprintf("[%d items]", v.Len())
	case reflect.Map:
		if v.Len() == 0 {
			return "{}"
		}
		return fmt.Sprintf("{%d keys}", v.Len())
	case reflect.Struct:
		return "{...}"
	default:
		return fmt.Sprint(v.Interface())
	}
}
