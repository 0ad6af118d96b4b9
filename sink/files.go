package sink

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
)

type ConfigFile struct {
	Name   string
	Reader io.Reader
	Length int
}

// ReadConfigFile reads the named file from disk.
func ReadConfigFile(name string) (ConfigFile, error) {
	var result ConfigFile
	data, err := os.ReadFile(name)
	if err != nil {
		return result, fmt.Errorf("failed to read config file %s %w", name, err)
	}
	return configFileFromBytes(name, data), nil
}

// FindConfigFiles reads each named file from fsys, in order.
func FindConfigFiles(fsys fs.FS, names ...string) ([]ConfigFile, error) {
	var result []ConfigFile
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return result, fmt.Errorf("failed to find config file %s %w", name, err)
		}
		result = append(result, configFileFromBytes(name, data))
	}
	return result, nil
}

func configFileFromBytes(name string, data []byte) ConfigFile {
	return ConfigFile{
		Name:   name,
		Reader: bytes.NewReader(data),
		Length: len(data),
	}
}
