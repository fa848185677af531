package web

import "html/template"

// Templates are compiled at startup; a bad template is a programming
// error, so parsing panics via Must.
var (
	loginTmpl   = template.Must(template.New("login").Parse(pageHead + loginPage + pageFoot))
	listTmpl    = template.Must(template.New("list").Parse(pageHead + listPage + pageFoot))
	formTmpl    = template.Must(template.New("form").Parse(pageHead + formPage + pageFoot))
	viewTmpl    = template.Must(template.New("view").Parse(pageHead + viewPage + pageFoot))
	notesTmpl   = template.Must(template.New("notes").Parse(pageHead + notesPage + pageFoot))
	noteTmpl    = template.Must(template.New("note").Parse(pageHead + notePage + pageFoot))
	noteAddTmpl = template.Must(template.New("noteadd").Parse(pageHead + noteAddPage + pageFoot))

	generatedTmpl = template.Must(template.New("generated").Parse(pageHead + generatedPage + pageFoot))
)

const pageHead = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>lockbox</title>
<style>
body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; }
table { border-collapse: collapse; width: 100%; }
th, td { text-align: left; padding: 0.3rem 0.6rem; border-bottom: 1px solid #ddd; }
.error { color: #b00020; }
nav a { margin-right: 1rem; }
form.inline { display: inline; }
</style>
</head>
<body>
`

const pageFoot = `
</body>
</html>
`

const loginPage = `<h1>lockbox</h1>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<form method="post" action="/login">
<label>Master passphrase <input type="password" name="passphrase" autofocus></label>
<button type="submit">Unlock</button>
</form>`

const listPage = `<nav><a href="/">Passwords</a><a href="/notes">Notes</a><a href="/add">Add</a><a href="/logout">Lock</a></nav>
<h1>Passwords</h1>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
{{if .Records}}
<table>
<tr><th>ID</th><th>Service</th><th>Username</th><th>Created</th><th></th></tr>
{{range .Records}}
<tr>
<td>{{.ID}}</td>
<td><a href="/view?id={{.ID}}">{{.Service}}</a></td>
<td>{{.Username}}</td>
<td>{{.CreatedAt.Format "2006-01-02"}}</td>
<td>
<a href="/edit?id={{.ID}}">edit</a>
<form class="inline" method="post" action="/delete"><input type="hidden" name="id" value="{{.ID}}"><button type="submit">delete</button></form>
</td>
</tr>
{{end}}
</table>
{{else}}<p>The vault is empty.</p>{{end}}`

const formPage = `<nav><a href="/">Passwords</a><a href="/notes">Notes</a><a href="/logout">Lock</a></nav>
<h1>{{.Title}}</h1>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<form method="post" action="{{.Action}}">
{{if .ID}}<input type="hidden" name="id" value="{{.ID}}">{{end}}
<p><label>Service <input name="service" value="{{.Service}}" required></label></p>
<p><label>Username <input name="username" value="{{.Username}}"></label></p>
<p><label>Password <input type="password" name="password" placeholder="{{.SecretHint}}"></label></p>
<p><label>Note <input name="note" value="{{.Note}}"></label></p>
<button type="submit">Save</button>
</form>`

const generatedPage = `<nav><a href="/">Passwords</a><a href="/notes">Notes</a><a href="/logout">Lock</a></nav>
<h1>Password saved</h1>
<p>Record {{.ID}} for {{.Service}} was created. No password was supplied,
so one was generated for you. It is shown only once; copy it now.</p>
<p>Generated password: <code>{{.Secret}}</code></p>
<p><a href="/">Back to the list</a></p>`

const viewPage = `<nav><a href="/">Passwords</a><a href="/notes">Notes</a><a href="/logout">Lock</a></nav>
<h1>{{.Record.Service}}</h1>
<table>
<tr><th>ID</th><td>{{.Record.ID}}</td></tr>
<tr><th>Username</th><td>{{.Record.Username}}</td></tr>
<tr><th>Password</th><td><code>{{.Record.Secret}}</code></td></tr>
<tr><th>Note</th><td>{{.Record.Note}}</td></tr>
<tr><th>Created</th><td>{{.Record.CreatedAt.Format "2006-01-02 15:04:05"}}</td></tr>
</table>
<p><a href="/edit?id={{.Record.ID}}">Edit</a></p>`

const notesPage = `<nav><a href="/">Passwords</a><a href="/notes">Notes</a><a href="/notes-add">Add note</a><a href="/logout">Lock</a></nav>
<h1>Secure notes</h1>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
{{if .Notes}}
<table>
<tr><th>ID</th><th>Title</th><th>Created</th><th></th></tr>
{{range .Notes}}
<tr>
<td>{{.ID}}</td>
<td><a href="/notes-view?id={{.ID}}">{{.Title}}</a></td>
<td>{{.CreatedAt.Format "2006-01-02"}}</td>
<td><form class="inline" method="post" action="/notes-delete"><input type="hidden" name="id" value="{{.ID}}"><button type="submit">delete</button></form></td>
</tr>
{{end}}
</table>
{{else}}<p>No notes yet.</p>{{end}}`

const notePage = `<nav><a href="/">Passwords</a><a href="/notes">Notes</a><a href="/logout">Lock</a></nav>
<h1>{{.Note.Title}}</h1>
<pre>{{.Body}}</pre>
<p>Created {{.Note.CreatedAt.Format "2006-01-02 15:04:05"}}</p>`

const noteAddPage = `<nav><a href="/">Passwords</a><a href="/notes">Notes</a><a href="/logout">Lock</a></nav>
<h1>Add note</h1>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<form method="post" action="/notes-add">
<p><label>Title <input name="title" required></label></p>
<p><label>Body<br><textarea name="body" rows="10" cols="60"></textarea></label></p>
<button type="submit">Save</button>
</form>`
