// Package fedfs federates several hierarchical sources into one
// path-addressable namespace.
//
// Each source is mounted at a path and answers for the nodes below it. A
// read merges the contributions of every source covering the path: children
// are concatenated in priority order with same-name siblings numbered
// `name[1]`, `name[2]`, and properties of the same name are combined. Merged
// nodes stay cached until they expire or a write through the workspace
// invalidates them.
//
// Basic usage:
//
//	store := fedfs.NewNodeStore()
//	ws, _ := fedfs.Open("main",
//	    fedfs.WithSource("local", fedfs.Root, fedfs.NewStoreConnector(store)),
//	    fedfs.WithCachePolicy(fedfs.BasicPolicy{TimeToLive: fedfs.TTLSeconds(60)}),
//	)
//	defer ws.Close()
//
//	// Write through the workspace
//	docs, _ := ws.CreateNode(ctx, fedfs.Root, fedfs.NewName("docs"))
//	ws.SetProperty(ctx, docs, fedfs.NewProperty(fedfs.NewName("title"), "Docs"))
//
//	// Read the merged view
//	node, _ := ws.Read(ctx, fedfs.MustParsePath("/docs"))
//	fmt.Println(node.ID, node.Children)
//
//	// Visit the whole tree
//	ws.Walk(ctx, fedfs.Root, func(n *fedfs.FederatedNode) error {
//	    fmt.Println(n.Path)
//	    return nil
//	})
//
// Mounting a second source below the root:
//
//	ws, _ := fedfs.Open("main",
//	    fedfs.WithSource("local", fedfs.Root, fedfs.NewStoreConnector(local)),
//	    fedfs.WithSource("shared", fedfs.MustParsePath("/shared"), fedfs.NewStoreConnector(shared)),
//	)
package fedfs
