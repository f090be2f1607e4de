package conf

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

const Separator = "__"

// Load reads the YAML file at p on top of Default(). Environment variables
// named <FILE>__<SECTION>__<KEY> (for crcseg.yaml: CRCSEG__BASIC__RESTPORT)
// override file values. With an empty p only the environment is applied,
// using the CRCSEG prefix. A .env file in the working directory is loaded
// first.
func Load(p string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		Log.Warnf("Failed to load .env: %v", err)
	}
	c := Default()
	if p != "" {
		if err := LoadConfigFromPath(p, c); err != nil {
			return nil, err
		}
	} else if err := apply(make(map[string]interface{}), getPrefix(ConfFileName), c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func LoadConfigFromPath(p string, c interface{}) error {
	prefix := getPrefix(p)
	b, err := os.ReadFile(p)
	if err != nil {
		return err
	}
	configMap := make(map[string]interface{})
	if err := yaml.Unmarshal(b, &configMap); err != nil {
		return fmt.Errorf("parse %s: %w", p, err)
	}
	return apply(normalize(configMap), prefix, c)
}

// apply overlays environment overrides on configs and decodes the result
// into c. Input is weakly typed so that DEBUG=1 or PORT="8080" still decode.
func apply(configs map[string]interface{}, prefix string, c interface{}) error {
	if err := process(configs, os.Environ(), prefix); err != nil {
		return err
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           c,
	})
	if err != nil {
		return err
	}
	return dec.Decode(configs)
}

func getPrefix(p string) string {
	file := filepath.Base(p)
	return strings.ToUpper(strings.TrimSuffix(file, filepath.Ext(file)))
}

func process(configMap map[string]interface{}, variables []string, prefix string) error {
	for _, e := range variables {
		if !strings.HasPrefix(e, prefix+Separator) {
			continue
		}
		pair := strings.SplitN(e, "=", 2)
		if len(pair) != 2 {
			return fmt.Errorf("wrong format of variable")
		}
		keys := nameToKeys(strings.TrimPrefix(pair[0], prefix+Separator))
		if err := handle(configMap, keys, pair[1]); err != nil {
			return fmt.Errorf("apply %s: %w", pair[0], err)
		}
		Log.Infof("Set config '%s.%s' to '%s' by environment variable", strings.ToLower(prefix), strings.Join(keys, "."), pair[1])
	}
	return nil
}

func handle(conf map[string]interface{}, keysLeft []string, val string) error {
	key := strings.ToLower(keysLeft[0])
	if len(keysLeft) == 1 {
		conf[key] = getValueType(val)
		return nil
	}
	if v, ok := conf[key]; ok {
		casted, ok := v.(map[string]interface{})
		if !ok {
			return fmt.Errorf("%s is not a section", key)
		}
		return handle(casted, keysLeft[1:], val)
	}
	next := make(map[string]interface{})
	conf[key] = next
	return handle(next, keysLeft[1:], val)
}

func nameToKeys(key string) []string {
	return strings.Split(strings.ToLower(key), Separator)
}

func getValueType(val string) interface{} {
	val = strings.TrimSpace(val)
	if strings.HasPrefix(val, "[") && strings.HasSuffix(val, "]") {
		val = strings.TrimSuffix(strings.TrimPrefix(val, "["), "]")
		var ret []interface{}
		for _, v := range strings.Split(val, ",") {
			ret = append(ret, getValueType(v))
		}
		return ret
	}
	if i, err := strconv.ParseInt(val, 10, 64); err == nil {
		return i
	}
	if b, err := strconv.ParseBool(val); err == nil {
		return b
	}
	if f, err := strconv.ParseFloat(val, 64); err == nil {
		return f
	}
	return val
}

func normalize(m map[string]interface{}) map[string]interface{} {
	res := make(map[string]interface{})
	for k, v := range m {
		lowered := strings.ToLower(k)
		if casted, ok := v.(map[string]interface{}); ok {
			res[lowered] = normalize(casted)
		} else {
			res[lowered] = v
		}
	}
	return res
}
