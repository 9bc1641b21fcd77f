package curator

import (
	"fmt"
	"strings"

	"github.com/xaenox/curatord/internal/catalog"
	"github.com/xaenox/curatord/internal/models"
)

const defaultSystemPrompt = "You are a helpful collection curator."

// buildPrompt assembles the user prompt for one run: the collection, its
// current contents, the curator's rule lines, and the response format the
// parser expects.
func buildPrompt(curator *models.Curator, collection *catalog.CollectionItem, items []catalog.CollectionItem, extraInstructions string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are curating the collection: %s\n\n", collection.Name)

	if description, ok := collection.Attributes["description"].(string); ok && description != "" {
		fmt.Fprintf(&b, "Collection Description: %s\n\n", description)
	}

	b.WriteString("Current items in collection:\n")
	for _, item := range items {
		fmt.Fprintf(&b, "- %s", item.Name)
		if rarity, ok := item.Attributes["rarity"].(string); ok && rarity != "" {
			fmt.Fprintf(&b, " (%s)", rarity)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nCuration Rules:\n")
	for _, rule := range curator.Rules {
		fmt.Fprintf(&b, "- %s\n", rule)
	}
	if curator.Prompt != "" {
		fmt.Fprintf(&b, "- %s\n", curator.Prompt)
	}
	if extraInstructions != "" {
		fmt.Fprintf(&b, "\nAdditional instructions for this run: %s\n", extraInstructions)
	}

	b.WriteString("\nPlease suggest items to add or remove from this collection. ")
	b.WriteString("Return your response as a JSON object with an array of suggestions. ")
	b.WriteString("Each suggestion should have: action (add/remove), item_name, reason, confidence (0-100), and search_query (for finding the item).\n")
	b.WriteString(`Example format: {"suggestions": [{"action": "add", "item_name": "Item Name", "reason": "Why", "confidence": 85, "search_query": "search terms"}]}`)

	return b.String()
}
