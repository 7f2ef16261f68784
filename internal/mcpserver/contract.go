package mcpserver

// ImportContract describes how Markdown files are interpreted when they are
// imported as articles.
const ImportContract = `# Markdown Import Contract

Every ` + "`" + `.md` + "`" + ` file becomes one article. Fields are inferred as follows.

## Frontmatter

A block delimited by ` + "`" + `---` + "`" + ` lines at the very start of the file.
Each line is ` + "`" + `key: value` + "`" + `. Values may be quoted, or a list in brackets:
` + "`" + `tags: [go, "web dev"]` + "`" + `. Nested YAML is not supported; malformed lines are
ignored and never fail the import.

## Recognised keys

| Field        | Keys, highest priority first                               |
|--------------|------------------------------------------------------------|
| title        | title                                                      |
| tags         | tags, categories (lists are merged)                        |
| created time | date, created, createTime, created_at                      |
| updated time | updated, modified, updateTime, updated_at, last_modified   |
| original URL | url, link, source, original, originalUrl                   |

## Fallbacks

- **Title:** first ` + "`" + `# Heading` + "`" + ` in the body, else the file name without
  extension, leading numbers and decoration.
- **Category:** the parent directory name; files at the top level are
  ` + "`" + `uncategorized` + "`" + `.
- **Tags:** ` + "`" + `#hashtags` + "`" + ` in the body (two or more word characters) are added.

## Validation

- Title must be non-blank and at most 200 characters.
- Body (without frontmatter) must be non-blank and at most 100000 characters.

## Duplicates

Articles are matched by exact title. The import mode decides what happens:
` + "`" + `skip` + "`" + ` keeps the existing article, ` + "`" + `update` + "`" + ` rewrites it in place,
` + "`" + `overwrite` + "`" + ` deletes and recreates it.
`
