package mcpserver

// RecordFormatContract describes the records Ansuz writes so that LLM
// consumers can read them and edit them without breaking regeneration.
const RecordFormatContract = `# Ansuz Record Format

Every record in the vault is a Markdown file: YAML frontmatter between ` + "`---`" + ` fences,
followed by the body. Ansuz owns the frontmatter and the managed regions; everything
else in the body is free text and is never rewritten.

## Kinds and locations

| type         | directory                                   | produced from              |
|--------------|---------------------------------------------|----------------------------|
| literature   | 02-Literature/{papers,books,articles}/       | one per processed source   |
| permanent    | 03-Permanent/<concept type>s/                | one per atomic concept     |
| map          | 04-MOCs/<slug>.md                            | one per map of content     |

File names are the title with spaces replaced by dashes, capped at 100 characters.

## Frontmatter

` + "```" + `yaml
id: 20260504101500-1a2b3c4d        # time-ordered, never changes
title: Spacing Effect
type: permanent                     # literature | permanent | map
status: seedling                    # seedling | budding | evergreen
domain: psychology
subdomain: learning                 # optional
tags: [memory, learning]
basb:
  para_category: resources
  para_path: 3-Resources/46-Psychology
  progressive_summary_layer: 1
lyt:
  mocs: [Learning MOC]
zettelkasten:
  permanent_note_type: concept      # concept | principle | method | example
  connections_count: 3
  connections_quality: 0.82
source:                             # literature-derived records only
  type: academic_paper
  title: Distributed Practice in Verbal Recall Tasks
  authors: [Cepeda, Pashler]
confidence: 0.8
completeness: 0.7
created: 2026-05-04T10:15:00Z
modified: 2026-05-04T10:15:00Z
links_out:
  - target: Retrieval Practice
    target_id: 20260504101500-9f8e7d6c
    type: supports                  # supports | extends | applies | prerequisite | contrasts | related
    confidence: 0.86
    context: both describe long-term retention gains
links_in: []                        # mirrored automatically, never edit by hand
` + "```" + `

Every outbound edge is mirrored on the target: supports becomes supported_by,
extends becomes extended_by, applies becomes applied_in, prerequisite becomes
required_for. contrasts and related are symmetric.

## Managed regions

Ansuz rewrites only the text between these markers:

- ` + "`<!-- ansuz:members:start -->`" + ` ... ` + "`<!-- ansuz:members:end -->`" + `
  member list of a map, one ` + "`- [[Title]]`" + ` per line.
- ` + "`<!-- ansuz:status:start -->`" + ` ... ` + "`<!-- ansuz:status:end -->`" + `
  member count and status line of a map.
- ` + "`<!-- ansuz:connections:start -->`" + ` ... ` + "`<!-- ansuz:connections:end -->`" + `
  typed connection list of a permanent record.

Text outside the markers, including your own headings and notes, survives
every update. Removing a marker makes Ansuz append a fresh region at the end.

## Links

Body links use ` + "`[[Title]]`" + ` or ` + "`[[Title|alias]]`" + ` and resolve by record title.
They count as related edges in search and graph views.
`
