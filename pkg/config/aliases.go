package config

import "strings"

// ResolveModel returns the canonical model name for an alias.
// If the input is not an alias, it returns the input unchanged.
func (c *RoutingConfig) ResolveModel(modelOrAlias string) string {
	if c == nil || c.ModelAliases == nil {
		return modelOrAlias
	}
	if canonical, ok := c.ModelAliases[strings.TrimSpace(modelOrAlias)]; ok {
		return canonical
	}
	return modelOrAlias
}

