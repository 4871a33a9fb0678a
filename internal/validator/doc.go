// Package validator wraps go-playground/validator with readable messages.
//
// Field names in errors come from json (or mapstructure) tags so they match
// what clients and config files use. Two custom tags are registered:
//
//	feature_name  identifier-like feature names
//	finite        rejects NaN and Inf floats
package validator
