package main

import (
	"fmt"
	"os/exec"
	"slices"
	"strconv"
	"strings"

	"github.com/benaskins/secretkit/secret"
)

// parseAttributes reads key=value arguments into a schema named name and
// the attributes to send with it. A key may carry a type suffix:
// port:int=5432 or enabled:bool=true. Untyped keys are strings.
func parseAttributes(name string, args []string, opts ...secret.SchemaOption) (*secret.Schema, secret.Attributes, error) {
	types := make(map[string]secret.AttributeType, len(args))
	attrs := make(secret.Attributes, len(args))

	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, nil, fmt.Errorf("attribute %q: expected key=value", arg)
		}
		key, kind, _ := strings.Cut(key, ":")
		if key == "" {
			return nil, nil, fmt.Errorf("attribute %q: empty key", arg)
		}
		if _, dup := attrs[key]; dup {
			return nil, nil, fmt.Errorf("attribute %q given twice", key)
		}

		switch kind {
		case "", "string":
			types[key] = secret.String
			attrs[key] = secret.Text(raw)
		case "int":
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("attribute %q: %w", key, err)
			}
			types[key] = secret.Integer
			attrs[key] = secret.Int(n)
		case "bool":
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return nil, nil, fmt.Errorf("attribute %q: %w", key, err)
			}
			types[key] = secret.Boolean
			attrs[key] = secret.Bool(b)
		default:
			return nil, nil, fmt.Errorf("attribute %q: unknown type %q", key, kind)
		}
	}

	schema, err := secret.NewSchema(name, types, opts...)
	if err != nil {
		return nil, nil, err
	}
	return schema, attrs, nil
}

// formatAttributes renders attributes as sorted key=value pairs.
func formatAttributes(attrs map[string]string) string {
	pairs := make([]string, 0, len(attrs))
	for k, v := range attrs {
		pairs = append(pairs, k+"="+v)
	}
	slices.Sort(pairs)
	return strings.Join(pairs, " ")
}

// runPasswordCommand runs command through the shell and returns its
// output as the password.
func runPasswordCommand(command string) (string, error) {
	cmd := exec.Command("/bin/sh", "-c", command)
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("exit code %d: %s", exitErr.ExitCode(), string(exitErr.Stderr))
		}
		return "", err
	}
	return strings.TrimRight(string(output), "\n"), nil
}
