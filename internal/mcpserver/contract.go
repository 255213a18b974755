package mcpserver

// NoteFormatContract describes how pensieve lays out notes, stacks and
// relations, for LLM consumers that create notes or links.
const NoteFormatContract = `# Pensieve Note Format Contract

A pensieve collection is a directory tree. Directories are **stacks**, files
are **notes**. Paths are relative to the stacks root and use forward slashes
(e.g. ` + "`" + `Projects/Garden/plan.md` + "`" + `).

## Note kinds

The kind of a note follows from its extension:

| Extension | Kind | Content |
|-----------|------|---------|
| .md, .txt | text | Markdown, optional YAML frontmatter |
| .canvas | canvas | JSON board of text and note elements |
| .tasklist | tasklist | JSON task list |
| .png, .jpg, ... | image | binary |
| .mp3, .m4a, ... | audio | binary |

## Text notes

` + "```" + `markdown
---
title: Human-readable title        # OPTIONAL – otherwise the first "# " heading, else the filename
tags:                               # OPTIONAL – YAML list; used for filtering
  - garden
---

# Plan

Body text in standard Markdown.
` + "```" + `

## Relations

Links are **not** written inside note bodies. Every note may have a hidden
sidecar file next to it (` + "`" + `.plan.json` + "`" + ` for ` + "`" + `plan.md` + "`" + `) holding its ordered
links and its backlinks:

` + "```" + `json
{"links": [["Projects/b.md", ["ref"]]], "backlinks": [["Inbox/a.md", []]]}
` + "```" + `

1. **Never edit sidecars by hand.** Use the ` + "`" + `add_link` + "`" + `, ` + "`" + `remove_link` + "`" + ` and
   ` + "`" + `move_note` + "`" + ` tools; they keep links and backlinks symmetric.
2. Each link carries a list of **props** (short lowercase words such as
   ` + "`" + `ref` + "`" + `, ` + "`" + `date` + "`" + `). The backlink mirrors the props of its link.
3. Link order is meaningful and preserved.

## Stacks

- The **inbox** collects new material. ` + "`" + `send_text` + "`" + ` and ` + "`" + `import_asset` + "`" + `
  drop notes there; notes without a filename are named by timestamp
  (` + "`" + `2025-01-20 09,30,00.md` + "`" + `).
- The **calendar** holds one date note per day at ` + "`" + `YYYY/MM/DD.md` + "`" + `. Use
  ` + "`" + `date_node` + "`" + ` to find or create it, then link to it with the ` + "`" + `date` + "`" + ` prop.
- Names starting with a dot are hidden and never listed.

## Rules

1. **Filenames** are plain names: no path separators, no leading dot.
2. **Encoding** is UTF-8.
3. Prefer templates (` + "`" + `list_templates` + "`" + `, ` + "`" + `run_template` + "`" + `) over free-form notes when one fits.
4. Search before creating: a note about the topic may already exist.
`
