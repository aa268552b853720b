package mapmaint

import (
	"strings"
	"time"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/vault"
)

func renderMap(name, domain, subdomain string, members []string, status models.Status, now time.Time) string {
	domainPath := domain
	focus := ""
	if subdomain != "" {
		domainPath = domain + " / " + subdomain
		focus = ", specifically focusing on **" + subdomain + "**"
	}

	var b strings.Builder
	b.WriteString("# " + name + "\n\n")
	b.WriteString("> [!abstract] Map of Content\n")
	b.WriteString("> **Domain:** " + domainPath + "\n")
	b.WriteString("> **Purpose:** Navigate and synthesize knowledge in this area\n\n")
	b.WriteString(vault.WrapRegion(vault.RegionStatus, statusLine(status, len(members))) + "\n\n---\n\n")

	b.WriteString("## What Is This Map About?\n\n")
	b.WriteString("This map organizes knowledge in the **" + domain + "** domain" + focus + ". ")
	b.WriteString("It is an entry point for navigating atomic concepts and discovering connections between ideas.\n\n---\n\n")

	b.WriteString("## The Landscape\n\n")
	b.WriteString(membersHeading + "\n\n")
	b.WriteString(vault.WrapRegion(vault.RegionMembers, memberList(members)) + "\n\n")
	b.WriteString("### Related Maps\n\n- `[[]]` - Related map\n\n---\n\n")

	b.WriteString("## Why Does This Matter?\n\n**Your answer:**\n-\n\n---\n\n")

	b.WriteString("## Synthesis & Insights\n\n")
	b.WriteString("**Patterns I've noticed:**\n-\n\n")
	b.WriteString("**Connections to other maps:**\n-\n\n")
	b.WriteString("**Key themes:**\n-\n\n---\n\n")

	b.WriteString("## Curated Paths\n\n")
	b.WriteString("**For beginners:**\n1. Start: `[[]]`\n2. Then: `[[]]`\n3. Finally: `[[]]`\n\n")
	b.WriteString("**For deep dive:**\n-\n\n---\n\n")

	b.WriteString("## Open Questions\n\n")
	b.WriteString("- [ ] What's missing from this map?\n")
	b.WriteString("- [ ] What contradictions exist between notes?\n")
	b.WriteString("- [ ] How does this connect to other domains?\n\n---\n\n")

	b.WriteString("## Evolution\n\n**Update History:**\n")
	b.WriteString("- " + now.Format("2006-01-02") + ": Created\n\n---\n\n")

	b.WriteString("## Personal Notes\n\n**Why I care about this:**\n\n\n**Projects that drew from this:**\n")
	return b.String()
}
