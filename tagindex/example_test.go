package tagindex_test

import (
	"context"
	"fmt"

	"github.com/jonwraymond/tagcache/tagindex"
)

func ExampleMemoryIndex() {
	ctx := context.Background()
	idx := tagindex.NewMemoryIndex()

	_ = idx.Insert(ctx, "page:1", "pages")
	_ = idx.Insert(ctx, "page:1", "nav")
	_ = idx.Insert(ctx, "menu:main", "nav")
	_ = idx.Insert(ctx, "footer", "layout")

	nav, _ := idx.FindKeysByTagIn(ctx, []string{"nav"})
	rest, _ := idx.FindKeysByTagNotIn(ctx, []string{"nav"})
	fmt.Println(nav)
	fmt.Println(rest)
	// Output:
	// [menu:main page:1]
	// [footer]
}

func ExampleRegistry_Create() {
	idx, err := tagindex.DefaultRegistry.Create(context.Background(), "memory", map[string]any{
		"resilience": map[string]any{"max_failures": 5, "timeout": "2s"},
	})
	if err != nil {
		fmt.Println(err)
		return
	}
	defer idx.Close()
	fmt.Printf("%T\n", idx)
	// Output: *tagindex.Resilient
}
