package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
)

// LoadEnv loads configuration from environment variables
func LoadEnv(cfg *Config) error {
	return loadEnvStruct(reflect.ValueOf(cfg).Elem(), "RATEGATE")
}

// loadEnvStruct recursively loads environment variables into a struct
func loadEnvStruct(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// Skip unexported fields
		if !field.CanSet() {
			continue
		}

		// Get the YAML tag to use as the env var name
		yamlTag := fieldType.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}

		// Remove omitempty and other options
		envName := strings.Split(yamlTag, ",")[0]
		envKey := prefix
		if envName != "" {
			envKey = fmt.Sprintf("%s_%s", prefix, strings.ToUpper(envName))
		}

		// Handle different field types
		switch field.Kind() {
		case reflect.String:
			if val := os.Getenv(envKey); val != "" {
				field.SetString(val)
			}

		case reflect.Int, reflect.Int64:
			if val := os.Getenv(envKey); val != "" {
				intVal, err := strconv.ParseInt(val, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid int value for %s: %v", envKey, err)
				}
				field.SetInt(intVal)
			}

		case reflect.Bool:
			if val := os.Getenv(envKey); val != "" {
				boolVal, err := strconv.ParseBool(val)
				if err != nil {
					return fmt.Errorf("invalid bool value for %s: %v", envKey, err)
				}
				field.SetBool(boolVal)
			}

		case reflect.Slice:
			if val := os.Getenv(envKey); val != "" {
				// Handle string slices (comma-separated)
				if field.Type().Elem().Kind() == reflect.String {
					parts := strings.Split(val, ",")
					slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
					for i, part := range parts {
						slice.Index(i).SetString(strings.TrimSpace(part))
					}
					field.Set(slice)
				}
			}

		case reflect.Struct:
			// Recursively handle nested structs
			if err := loadEnvStruct(field, envKey); err != nil {
				return err
			}

		case reflect.Ptr:
			// Handle pointer fields
			if field.IsNil() {
				needed := false
				if field.Type().Elem().Kind() == reflect.Struct {
					needed = hasEnvVarsWithPrefix(envKey)
				} else {
					needed = os.Getenv(envKey) != ""
				}
				if !needed {
					continue
				}
				field.Set(reflect.New(field.Type().Elem()))
			}

			switch field.Type().Elem().Kind() {
			case reflect.Struct:
				if err := loadEnvStruct(field.Elem(), envKey); err != nil {
					return err
				}
			case reflect.Int:
				if val := os.Getenv(envKey); val != "" {
					intVal, err := strconv.Atoi(val)
					if err != nil {
						return fmt.Errorf("invalid int value for %s: %v", envKey, err)
					}
					field.Elem().SetInt(int64(intVal))
				}
			case reflect.String:
				if val := os.Getenv(envKey); val != "" {
					field.Elem().SetString(val)
				}
			}

		case reflect.Map:
			// Group definitions live in the config file only
			continue
		}
	}

	return nil
}

// hasEnvVarsWithPrefix checks if any environment variables exist with the given prefix
func hasEnvVarsWithPrefix(prefix string) bool {
	prefix = prefix + "_"
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, prefix) {
			return true
		}
	}
	return false
}
