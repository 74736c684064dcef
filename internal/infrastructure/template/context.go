package template

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/mailgun/raymond/v2"

	"github.com/docrender/backend/internal/domain/document"
)

// varsMap is the evaluation-time shape of a variable mapping. The parser's
// path lookup is an exact map index, so every spelling a template uses for
// a key is inserted as an alias of the stored entry; insertion order rides
// along under orderMarker for the each helper.
type varsMap map[string]any

// orderMarker keys the insertion-order slice inside a varsMap. The NUL
// byte cannot appear in a template path expression, so the entry is
// unreachable from templates.
const orderMarker = "\x00keys"

// pathTokenPattern matches the identifier-like tokens of a path expression
var pathTokenPattern = regexp.MustCompile(`[\p{L}_][\p{L}\p{N}_-]*`)

// pathTokens collects every identifier appearing inside {{...}} regions of
// the given sources. The set is deliberately generous; a token only has an
// effect when it case-folds to a stored variable key.
func pathTokens(srcs ...string) map[string]struct{} {
	refs := make(map[string]struct{})
	for _, src := range srcs {
		for {
			start := strings.Index(src, "{{")
			if start < 0 {
				break
			}
			src = src[start+2:]
			end := strings.Index(src, "}}")
			if end < 0 {
				break
			}
			for _, tok := range pathTokenPattern.FindAllString(src[:end], -1) {
				refs[tok] = struct{}{}
			}
			src = src[end:]
		}
	}
	return refs
}

// variablesContext deep-converts the variable bag for template evaluation.
// refs holds the spellings the template sources actually use, so lookups
// stay case-insensitive after conversion.
func variablesContext(m *document.Map, refs map[string]struct{}) any {
	return mapContext(m, refs)
}

func mapContext(m *document.Map, refs map[string]struct{}) any {
	if m.Len() == 0 {
		return map[string]any{}
	}
	keys := m.Keys()
	out := make(varsMap, len(keys)+1)
	for _, k := range keys {
		v, _ := m.Get(k)
		out[k] = valueContext(v, refs)
	}
	out[orderMarker] = keys
	// aliases share the converted value, so nested aliases stay coherent
	for tok := range refs {
		if stored, ok := m.Resolve(tok); ok && stored != tok {
			out[tok] = out[stored]
		}
	}
	return out
}

func valueContext(v document.Value, refs map[string]struct{}) any {
	switch v.Kind() {
	case document.KindMap:
		return mapContext(v.MapVal(), refs)
	case document.KindList:
		elems := v.ListVal()
		out := make([]any, len(elems))
		for i, e := range elems {
			out[i] = valueContext(e, refs)
		}
		return out
	default:
		return v.Interface()
	}
}

// orderedEachHelper replaces the stock each helper. Variable mappings
// iterate in insertion order with their stored key spellings; plain maps
// iterate in sorted-key order so output is at least deterministic; slices
// and structs keep the stock behaviour.
func orderedEachHelper(context interface{}, options *raymond.Options) interface{} {
	if vm, ok := context.(varsMap); ok {
		keys, _ := vm[orderMarker].([]string)
		if len(keys) == 0 {
			return options.Inverse()
		}
		var b strings.Builder
		for i, k := range keys {
			b.WriteString(options.FnCtxData(vm[k], iterFrame(options, len(keys), i, k)))
		}
		return b.String()
	}

	if !raymond.IsTrue(context) {
		return options.Inverse()
	}

	var b strings.Builder
	val := reflect.ValueOf(context)
	switch val.Kind() {
	case reflect.Array, reflect.Slice:
		for i := 0; i < val.Len(); i++ {
			b.WriteString(options.FnCtxData(val.Index(i).Interface(), iterFrame(options, val.Len(), i, nil)))
		}
	case reflect.Map:
		keys := val.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})
		for i, key := range keys {
			b.WriteString(options.FnCtxData(val.MapIndex(key).Interface(), iterFrame(options, len(keys), i, key.Interface())))
		}
	case reflect.Struct:
		var fields []int
		for i := 0; i < val.NumField(); i++ {
			if val.Type().Field(i).PkgPath == "" {
				fields = append(fields, i)
			}
		}
		for i, idx := range fields {
			name := val.Type().Field(idx).Name
			b.WriteString(options.FnCtxData(val.Field(idx).Interface(), iterFrame(options, len(fields), i, name)))
		}
	}
	return b.String()
}

func iterFrame(options *raymond.Options, length, i int, key interface{}) *raymond.DataFrame {
	frame := options.NewDataFrame()
	frame.Set("index", i)
	frame.Set("key", key)
	frame.Set("first", i == 0)
	frame.Set("last", i == length-1)
	return frame
}
