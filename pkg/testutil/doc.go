// Package testutil builds the document fixtures shared by the extractor,
// pipeline and CLI tests. Fixtures are generated in memory so tests carry
// no binary files.
//
// [PDF] writes a single-font PDF with one page per argument and a correct
// cross-reference table. [ImagePDF] writes a page whose only content is
// an image XObject. [DOCX] zips a minimal WordprocessingML package.
// [Email] assembles a MIME message with optional attachments.
package testutil
