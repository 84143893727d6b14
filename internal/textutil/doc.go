// Package textutil provides filename sanitization helpers.
//
// Uploaded recordings arrive with whatever name the player's recorder gave
// them: accents, spaces, emoji. Slug folds such names to a lowercase ASCII
// token so stored files and exported notes have predictable paths.
package textutil
