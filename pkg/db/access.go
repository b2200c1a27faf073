package db

// Access guard: pure predicates over a document and a requesting identity.
// Every store mutation checks these before writing.

// HasViewAccess reports whether userID may read the document: public files
// are readable by anyone, otherwise owner and collaborators only.
func HasViewAccess(doc *Document, userID string) bool {
	return doc.IsPublic || HasEditAccess(doc, userID)
}

// HasEditAccess reports whether userID may modify the document. Public view
// does not imply edit.
func HasEditAccess(doc *Document, userID string) bool {
	if doc.OwnerID == userID {
		return true
	}
	for _, id := range doc.Collaborators {
		if id == userID {
			return true
		}
	}
	return false
}
