package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
)

const modulePrefix = "relaybot/"

type listedPackage struct {
	ImportPath   string
	Imports      []string
	TestImports  []string
	XTestImports []string
}

func main() {
	packages, err := listPackages()
	if err != nil {
		fmt.Fprintf(os.Stderr, "arch-check: %v\n", err)
		os.Exit(1)
	}

	violations := collectViolations(packages)
	if len(violations) == 0 {
		_, _ = fmt.Fprintf(os.Stdout, "arch-check: passed\n")
		return
	}

	_, _ = fmt.Fprintf(os.Stdout, "arch-check: architecture violations:\n")
	for _, violation := range violations {
		_, _ = fmt.Fprintf(os.Stdout, "  - %s\n", violation)
	}
	os.Exit(1)
}

func listPackages() ([]listedPackage, error) {
	cmd := exec.Command("go", "list", "-json", "-test", "./...")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("go list -json -test ./...: %w", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(stdout.Bytes()))
	result := make([]listedPackage, 0, 64)
	for {
		var pkg listedPackage
		if err := decoder.Decode(&pkg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decode go list output: %w", err)
		}
		if pkg.ImportPath == "" {
			continue
		}
		result = append(result, pkg)
	}

	return result, nil
}

func collectViolations(packages []listedPackage) []string {
	found := make(map[string]struct{})

	for _, pkg := range packages {
		imports := append([]string{}, pkg.Imports...)
		imports = append(imports, pkg.TestImports...)
		imports = append(imports, pkg.XTestImports...)

		for _, imported := range imports {
			reason := violationReason(pkg.ImportPath, imported)
			if reason == "" {
				continue
			}
			entry := fmt.Sprintf("%s -> %s (%s)", pkg.ImportPath, imported, reason)
			found[entry] = struct{}{}
		}
	}

	violations := make([]string, 0, len(found))
	for violation := range found {
		violations = append(violations, violation)
	}
	sort.Strings(violations)

	return violations
}

// layerRule forbids packages under importer from importing packages under
// any of the forbidden prefixes.
type layerRule struct {
	importer  string
	forbidden []string
	reason    string
}

var layerRules = []layerRule{
	{
		importer:  "pkg/relay",
		forbidden: []string{"internal/"},
		reason:    "pkg/relay must not import internal/*",
	},
	{
		importer:  "internal/driver",
		forbidden: []string{"internal/pipeline", "internal/batch", "internal/bot"},
		reason:    "internal/driver/* must stay below the delivery pipeline",
	},
	{
		importer:  "internal/pipeline",
		forbidden: []string{"internal/driver", "internal/bot", "internal/batch"},
		reason:    "internal/pipeline must only depend on relay capabilities",
	},
	{
		importer:  "internal/batch",
		forbidden: []string{"internal/driver", "internal/bot"},
		reason:    "internal/batch must not import drivers or the bot front-end",
	},
	{
		importer:  "internal/bot",
		forbidden: []string{"internal/driver"},
		reason:    "internal/bot must reach telegram through relay capabilities",
	},
	{
		importer:  "internal/textrules",
		forbidden: []string{"internal/pipeline", "internal/batch", "internal/bot", "internal/driver"},
		reason:    "internal/textrules must not import runtime packages",
	},
	{
		importer:  "internal/linkstore",
		forbidden: []string{"internal/pipeline", "internal/batch", "internal/bot", "internal/driver"},
		reason:    "internal/linkstore must not import runtime packages",
	},
	{
		importer:  "internal/session",
		forbidden: []string{"internal/pipeline", "internal/batch", "internal/bot", "internal/driver"},
		reason:    "internal/session must not import runtime packages",
	},
}

func violationReason(importer, imported string) string {
	if !strings.HasPrefix(imported, modulePrefix) {
		return ""
	}

	for _, rule := range layerRules {
		if !strings.HasPrefix(importer, modulePrefix+rule.importer) {
			continue
		}
		for _, forbidden := range rule.forbidden {
			if strings.HasPrefix(imported, modulePrefix+forbidden) {
				return rule.reason
			}
		}
	}

	return ""
}
