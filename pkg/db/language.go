package db

import "fmt"

// DefaultLanguage is used when a room is opened before anyone chose one.
const DefaultLanguage = "javascript"

// Languages supported by the editor.
var supportedLanguages = map[string]bool{
	"javascript": true,
	"typescript": true,
	"python":     true,
	"cpp":        true,
	"c":          true,
	"java":       true,
	"go":         true,
	"rust":       true,
}

var languageExtensions = map[string]string{
	"javascript": "js",
	"typescript": "ts",
	"python":     "py",
	"cpp":        "cpp",
	"c":          "c",
	"java":       "java",
	"go":         "go",
	"rust":       "rs",
}

// Extensions accepted on the manual change-extension path.
var allowedExtensions = map[string]bool{
	"js": true, "ts": true, "py": true, "cpp": true,
	"c": true, "java": true, "go": true, "rs": true, "txt": true,
}

var starterTemplates = map[string]string{
	"javascript": `console.log("Hello World");`,
	"python":     `print("Hello World")`,
	"cpp": `#include <iostream>
using namespace std;
int main() {
  cout << "Hello World";
  return 0;
}`,
	"c": `#include <stdio.h>
int main() {
  printf("Hello World");
  return 0;
}`,
	"java": `class Main {
  public static void main(String[] args) {
    System.out.println("Hello World");
  }
}`,
}

// ValidateLanguage returns ErrValidation for languages outside the enum.
func ValidateLanguage(language string) error {
	if !supportedLanguages[language] {
		return fmt.Errorf("%w: unsupported language %q", ErrValidation, language)
	}
	return nil
}

// ValidateExtension returns ErrValidation for extensions outside the allow-list.
func ValidateExtension(ext string) error {
	if !allowedExtensions[ext] {
		return fmt.Errorf("%w: extension %q not allowed", ErrValidation, ext)
	}
	return nil
}

// ExtensionForLanguage maps a language to its file extension, txt as fallback.
func ExtensionForLanguage(language string) string {
	if ext, ok := languageExtensions[language]; ok {
		return ext
	}
	return "txt"
}

// StarterTemplate returns the initial code for a new file in the given
// language, empty when no template exists.
func StarterTemplate(language string) string {
	return starterTemplates[language]
}
