package bot

import (
	"fmt"
	"strconv"
	"strings"
)

// DealsArgs holds the parsed arguments of /deals.
type DealsArgs struct {
	Name string
	Page int
}

// ParseDealsArgs parses arguments for /deals.
// Format: <wine name...> [page]
func ParseDealsArgs(args string) (DealsArgs, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		return DealsArgs{}, fmt.Errorf("usage: /deals <wine name> [page]")
	}

	page := 1
	if len(parts) > 1 {
		if n, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
			if n < 1 {
				return DealsArgs{}, fmt.Errorf("page must be 1 or greater")
			}
			page = n
			parts = parts[:len(parts)-1]
		}
	}

	return DealsArgs{Name: strings.Join(parts, " "), Page: page}, nil
}

// ParseIDArg extracts the first word of a command argument string as an ID.
func ParseIDArg(args string) (string, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		return "", fmt.Errorf("ID is required")
	}
	return parts[0], nil
}

// parsePageCallback splits "<page>:<name>" callback data.
func parsePageCallback(data string) (DealsArgs, error) {
	pageStr, name, ok := strings.Cut(data, ":")
	if !ok || strings.TrimSpace(name) == "" {
		return DealsArgs{}, fmt.Errorf("malformed page callback %q", data)
	}
	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 1 {
		return DealsArgs{}, fmt.Errorf("invalid page %q", pageStr)
	}
	return DealsArgs{Name: name, Page: page}, nil
}
