package script

import (
	"errors"

	lua "github.com/yuin/gopher-lua"

	"github.com/feedloom/feedloom/app/database"
)

// RunContext is the capability surface handed to one script run. The host
// keeps ownership of the triad; the script can only reach it through the
// proxy's fixed method set.
type RunContext struct {
	Source *database.Source
	Feed   *database.Feed
	Post   *database.Post
	Posts  database.PostRepository
}

// newPostProxy builds the CurrentPost table. Every method is a closure over
// rc; no raw handle ever crosses into the interpreter.
func newPostProxy(L *lua.LState, rc *RunContext) *lua.LTable {
	proxy := L.NewTable()

	set := func(name string, fn lua.LGFunction) {
		L.SetField(proxy, name, L.NewFunction(fn))
	}

	set("markAsRead", func(L *lua.LState) int {
		if err := rc.Posts.SetPostsReadStatus([]int64{rc.Post.ID}, true); err != nil {
			L.RaiseError("markAsRead failed: %s", err.Error())
		}
		rc.Post.IsRead = true
		return 0
	})
	set("markAsUnread", func(L *lua.LState) int {
		if err := rc.Posts.SetPostsReadStatus([]int64{rc.Post.ID}, false); err != nil {
			L.RaiseError("markAsUnread failed: %s", err.Error())
		}
		rc.Post.IsRead = false
		return 0
	})
	set("isRead", func(L *lua.LState) int {
		L.Push(lua.LBool(rc.Post.IsRead))
		return 1
	})

	set("flag", func(L *lua.LState) int {
		color := checkFlagColor(L, rc)
		if err := rc.Posts.SetFlag(rc.Post.ID, color); err != nil {
			L.RaiseError("flag failed: %s", err.Error())
		}
		return 0
	})
	set("unflag", func(L *lua.LState) int {
		color := checkFlagColor(L, rc)
		if err := rc.Posts.ClearFlag(rc.Post.ID, color); err != nil {
			L.RaiseError("unflag failed: %s", err.Error())
		}
		return 0
	})

	set("assignToScriptFolder", func(L *lua.LState) int {
		id := int64(L.CheckInt(1))
		err := rc.Posts.AssignToScriptFolder(rc.Post.ID, id)
		if errors.Is(err, database.ErrInvalidScriptFolderID) {
			L.RaiseError("unknown script folder %d", id)
		}
		if err != nil {
			L.RaiseError("assignToScriptFolder failed: %s", err.Error())
		}
		return 0
	})
	set("unassignFromScriptFolder", func(L *lua.LState) int {
		id := int64(L.CheckInt(1))
		if err := rc.Posts.UnassignFromScriptFolder(rc.Post.ID, id); err != nil {
			L.RaiseError("unassignFromScriptFolder failed: %s", err.Error())
		}
		return 0
	})

	addFieldAccessors(L, proxy, rc)
	L.SetField(proxy, "enclosures", newEnclosureProxy(L, rc))

	set("feedTitle", func(L *lua.LState) int {
		L.Push(lua.LString(rc.Feed.Title))
		return 1
	})
	set("sourceTitle", func(L *lua.LState) int {
		L.Push(lua.LString(rc.Source.Title))
		return 1
	})

	return proxy
}

func checkFlagColor(L *lua.LState, rc *RunContext) database.FlagColor {
	name := L.CheckString(1)
	color, err := database.FlagColorFromName(name)
	if err != nil {
		L.RaiseError("unknown flag color %q", name)
	}
	return color
}

// addFieldAccessors wires getX/setX pairs for the mutable post fields.
// Setters persist immediately so a crashing script cannot leave the
// in-memory post and the row out of sync.
func addFieldAccessors(L *lua.LState, proxy *lua.LTable, rc *RunContext) {
	fields := []struct {
		name string
		get  func() string
		set  func(string)
	}{
		{"Title", func() string { return rc.Post.Title }, func(v string) { rc.Post.Title = v }},
		{"Link", func() string { return rc.Post.Link }, func(v string) { rc.Post.Link = v }},
		{"Content", func() string { return rc.Post.Content }, func(v string) { rc.Post.Content = v }},
		{"Author", func() string { return rc.Post.Author }, func(v string) { rc.Post.Author = v }},
		{"CommentsURL", func() string { return rc.Post.CommentsURL }, func(v string) { rc.Post.CommentsURL = v }},
	}

	for _, field := range fields {
		field := field
		L.SetField(proxy, "get"+field.name, L.NewFunction(func(L *lua.LState) int {
			L.Push(lua.LString(field.get()))
			return 1
		}))
		L.SetField(proxy, "set"+field.name, L.NewFunction(func(L *lua.LState) int {
			field.set(L.CheckString(1))
			err := rc.Posts.UpdatePostFields(rc.Post.ID, rc.Post.Title, rc.Post.Link,
				rc.Post.Content, rc.Post.Author, rc.Post.CommentsURL)
			if err != nil {
				L.RaiseError("set%s failed: %s", field.name, err.Error())
			}
			return 0
		}))
	}
}

// newEnclosureProxy exposes the post's enclosure list. Indexes are 1-based
// like every other Lua sequence.
func newEnclosureProxy(L *lua.LState, rc *RunContext) *lua.LTable {
	proxy := L.NewTable()

	checkIndex := func(L *lua.LState) int {
		i := L.CheckInt(1)
		if i < 1 || i > len(rc.Post.Enclosures) {
			L.RaiseError("enclosure index %d out of range", i)
		}
		return i - 1
	}

	L.SetField(proxy, "count", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(len(rc.Post.Enclosures)))
		return 1
	}))

	L.SetField(proxy, "get", L.NewFunction(func(L *lua.LState) int {
		enc := rc.Post.Enclosures[checkIndex(L)]
		t := L.NewTable()
		L.SetField(t, "url", lua.LString(enc.URL))
		L.SetField(t, "mimeType", lua.LString(enc.MimeType))
		L.SetField(t, "size", lua.LNumber(enc.Size))
		L.Push(t)
		return 1
	}))

	L.SetField(proxy, "add", L.NewFunction(func(L *lua.LState) int {
		attrs := database.EnclosureAttributes{
			URL:      L.CheckString(1),
			MimeType: L.OptString(2, ""),
			Size:     int64(L.OptInt(3, 0)),
		}
		if err := rc.Posts.AddEnclosure(rc.Post.ID, attrs); err != nil {
			L.RaiseError("add enclosure failed: %s", err.Error())
		}
		refreshEnclosures(L, rc)
		return 0
	}))

	L.SetField(proxy, "remove", L.NewFunction(func(L *lua.LState) int {
		enc := rc.Post.Enclosures[checkIndex(L)]
		if err := rc.Posts.RemoveEnclosure(enc.ID); err != nil {
			L.RaiseError("remove enclosure failed: %s", err.Error())
		}
		refreshEnclosures(L, rc)
		return 0
	}))

	L.SetField(proxy, "setURL", L.NewFunction(enclosureFieldSetter(rc, func(e *database.Enclosure, v string) {
		e.URL = v
	})))
	L.SetField(proxy, "setMimeType", L.NewFunction(enclosureFieldSetter(rc, func(e *database.Enclosure, v string) {
		e.MimeType = v
	})))

	return proxy
}

func enclosureFieldSetter(rc *RunContext, apply func(*database.Enclosure, string)) lua.LGFunction {
	return func(L *lua.LState) int {
		i := L.CheckInt(1)
		if i < 1 || i > len(rc.Post.Enclosures) {
			L.RaiseError("enclosure index %d out of range", i)
		}
		enc := &rc.Post.Enclosures[i-1]
		apply(enc, L.CheckString(2))
		err := rc.Posts.UpdateEnclosure(enc.ID, database.EnclosureAttributes{
			URL: enc.URL, MimeType: enc.MimeType, Size: enc.Size,
		})
		if err != nil {
			L.RaiseError("update enclosure failed: %s", err.Error())
		}
		return 0
	}
}

func refreshEnclosures(L *lua.LState, rc *RunContext) {
	post, err := rc.Posts.GetPost(rc.Post.ID)
	if err != nil {
		L.RaiseError("reload post failed: %s", err.Error())
	}
	if post != nil {
		rc.Post.Enclosures = post.Enclosures
	}
}
