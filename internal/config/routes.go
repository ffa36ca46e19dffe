package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"spotperp/internal/models"
)

// routesFile - структура YAML файла маршрутов
type routesFile struct {
	Routes []models.RouteConfig `yaml:"routes"`
}

// LoadRoutes читает описание маршрутов из YAML файла.
// Имена маршрутов должны быть уникальны, каждый маршрут проходит валидацию.
func LoadRoutes(path string) ([]models.RouteConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routes file: %w", err)
	}

	var file routesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse routes file: %w", err)
	}

	if len(file.Routes) == 0 {
		return nil, fmt.Errorf("routes file %s contains no routes", path)
	}

	seen := make(map[string]bool, len(file.Routes))
	for i, route := range file.Routes {
		if err := route.Validate(); err != nil {
			return nil, fmt.Errorf("route #%d: %w", i+1, err)
		}
		if seen[route.Name] {
			return nil, fmt.Errorf("duplicate route name: %s", route.Name)
		}
		seen[route.Name] = true
	}

	return file.Routes, nil
}
