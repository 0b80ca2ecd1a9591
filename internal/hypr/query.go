package hypr

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Client is one mapped window as reported by hyprctl clients.
type Client struct {
	Address string `json:"address"`
	Class   string `json:"class"`
	Title   string `json:"title"`
}

// QueryClients lists the open windows.
func QueryClients(ctx context.Context) ([]Client, error) {
	output, err := runHyprctlJSON(ctx, "clients")
	if err != nil {
		return nil, err
	}

	var clients []Client
	if err := json.Unmarshal(output, &clients); err != nil {
		return nil, fmt.Errorf("decode hyprctl clients json: %w", err)
	}
	for i := range clients {
		clients[i].Address = strings.TrimSpace(clients[i].Address)
		clients[i].Class = strings.TrimSpace(clients[i].Class)
		clients[i].Title = strings.TrimSpace(clients[i].Title)
	}
	return clients, nil
}

// MatchTitles returns the clients whose title matches pattern.
// The worker uses its own regex engine; this is an approximation.
func MatchTitles(clients []Client, pattern string) ([]Client, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile window title pattern: %w", err)
	}
	matched := make([]Client, 0, len(clients))
	for _, c := range clients {
		if re.MatchString(c.Title) {
			matched = append(matched, c)
		}
	}
	return matched, nil
}

// runHyprctlJSON executes a JSON-returning hyprctl subcommand.
func runHyprctlJSON(ctx context.Context, target string) ([]byte, error) {
	output, err := runHyprctlOutput(ctx, "-j", target)
	if err != nil {
		return nil, err
	}
	return output, nil
}
