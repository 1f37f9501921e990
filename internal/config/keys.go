package config

import (
	"reflect"
	"sort"
	"sync"
)

// settings maps every dot-separated key of Config to whether it carries a
// secret:"true" tag.
var settings = sync.OnceValue(func() map[string]bool {
	out := make(map[string]bool)
	collectSettings(reflect.TypeFor[Config](), "", out)
	return out
})

func collectSettings(t reflect.Type, prefix string, out map[string]bool) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := f.Tag.Get("mapstructure")
		if name == "" || name == "-" {
			continue
		}
		key := prefix + name
		if f.Type.Kind() == reflect.Struct {
			collectSettings(f.Type, key+".", out)
			continue
		}
		out[key] = f.Tag.Get("secret") == "true"
	}
}

// Keys returns every setting key in lexical order.
func Keys() []string {
	keys := make([]string, 0, len(settings()))
	for k := range settings() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsKnownKey reports whether key names a Config setting.
func IsKnownKey(key string) bool {
	_, ok := settings()[key]
	return ok
}

// IsSecretKey reports whether key names a setting tagged secret.
func IsSecretKey(key string) bool {
	return settings()[key]
}

// MaskSecret hides all but the last four characters of a non-empty secret.
func MaskSecret(s string) string {
	if len(s) <= 4 {
		if s == "" {
			return ""
		}
		return "***" + s
	}
	return "***" + s[len(s)-4:]
}

// MaskSecrets returns a copy of flat with the string values of secret keys
// masked.
func MaskSecrets(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for k, v := range flat {
		if s, ok := v.(string); ok && IsSecretKey(k) {
			v = MaskSecret(s)
		}
		out[k] = v
	}
	return out
}
