// Package watcher reports document changes under a directory.
//
// HybridWatcher uses fsnotify and falls back to polling where inotify is
// unavailable (network mounts, some container volumes). Raw events pass a
// Filter that drops hidden paths, editor scratch files, ignore globs and
// files no reader accepts, then a Debouncer that coalesces bursts per
// path into batches:
//
//	w, err := watcher.NewHybridWatcher(watcher.Options{Accept: registry.Supported})
//	if err != nil {
//	    return err
//	}
//	go func() { _ = w.Start(ctx, "./docs") }()
//	for batch := range w.Events() {
//	    for _, ev := range batch {
//	        // ev.Operation is OpCreate, OpModify, OpDelete or OpRename
//	    }
//	}
package watcher
