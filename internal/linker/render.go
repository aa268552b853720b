package linker

import (
	"fmt"
	"math"
	"strings"

	"github.com/starford/ansuz/internal/models"
)

var groupHeadings = map[models.EdgeType]string{
	models.EdgePrerequisite: "### Prerequisites",
	models.EdgeSupports:     "### Supports",
	models.EdgeExtends:      "### Extends",
	models.EdgeApplies:      "### Applications",
	models.EdgeRelated:      "### Related",
	models.EdgeContrasts:    "### Contrasts",
}

// RenderConnections renders outbound edges grouped by type. The output
// depends only on the edge list.
func RenderConnections(edges []models.Edge) string {
	if len(edges) == 0 {
		return "> [!info] No connections yet\n> Connections will be created by the linker."
	}
	byType := make(map[models.EdgeType][]models.Edge)
	for _, e := range edges {
		t := e.Type
		if _, ok := groupHeadings[t]; !ok {
			t = models.EdgeRelated
		}
		byType[t] = append(byType[t], e)
	}
	var groups []string
	for _, t := range models.DisplayOrder {
		group := byType[t]
		if len(group) == 0 {
			continue
		}
		lines := []string{groupHeadings[t]}
		for _, e := range group {
			lines = append(lines, fmt.Sprintf("- [[%s]] (%d%%) - %s", e.Target, int(math.Round(e.Confidence*100)), e.Context))
		}
		groups = append(groups, strings.Join(lines, "\n"))
	}
	return strings.Join(groups, "\n\n")
}
