package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

var ErrorOrganizationRequired = errors.New("organization id is required")
