package config

import (
	"fmt"

	"github.com/littlebearapps/adops-intel/internal/pipeline"
)

func fieldError(field, msg string) error {
	return pipeline.New(pipeline.ConfigInvalid, fmt.Sprintf("%s: %s", field, msg))
}

func fieldErrorf(field, msg string, args ...any) error {
	return fieldError(fmt.Sprintf(field, args...), msg)
}
