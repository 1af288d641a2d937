package common

import (
	"github.com/google/uuid"
)

// NewProfileID generates a unique profile id with the "profile_" prefix.
func NewProfileID() string {
	return "profile_" + uuid.New().String()
}

// NewSiteID generates a unique site id with the "site_" prefix.
func NewSiteID() string {
	return "site_" + uuid.New().String()
}

// NewJobID generates a unique job id with the "job_" prefix.
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewClientID generates a unique admin client id with the "client_" prefix.
func NewClientID() string {
	return "client_" + uuid.New().String()
}

// NewCommandID generates a unique admin command id with the "cmd_" prefix.
func NewCommandID() string {
	return "cmd_" + uuid.New().String()
}
