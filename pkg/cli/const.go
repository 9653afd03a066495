package cli

const (
	importCmd     = "import"
	showCmd       = "show"
	findTagsCmd   = "find-by-tags"
	trashCmd      = "trash"
	restoreCmd    = "restore"
	deleteCmd     = "delete"
	emptyTrashCmd = "empty-trash"
	tagsCmd       = "tags"
	abortCmd      = "abort"

	defaultLogsDir = "logs"
	defaultWorkDir = "work"
)
