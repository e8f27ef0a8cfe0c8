// internal/browser/scripts.go
package browser

import (
	"encoding/json"
	"fmt"
	"strings"
)

// markerAttribute tags the element a locator resolved to so CDP can address it by CSS.
const markerAttribute = "data-regress-target"

// resolveJS returns the candidate list for a locator. It is prepended to the
// locator scripts below and expects the locator as its first argument.
const resolveJS = `function __regressResolve(loc) {
	const scopes = Array.from(document.querySelectorAll(loc.selector));
	let items = scopes;
	if (loc.child) {
		items = scopes.length ? Array.from(scopes[0].querySelectorAll(loc.child)) : [];
	}
	if (loc.text) {
		items = items.filter((el) => (el.innerText || el.textContent || '').trim().includes(loc.text));
	}
	return items;
}
function __regressPick(loc) {
	const items = __regressResolve(loc);
	const idx = loc.nth < 0 ? items.length + loc.nth : loc.nth;
	return idx >= 0 && idx < items.length ? items[idx] : null;
}
function __regressVisible(el) {
	if (!el || !el.isConnected) { return false; }
	const style = window.getComputedStyle(el);
	if (style.visibility === 'hidden' || style.display === 'none') { return false; }
	return el.getClientRects().length > 0;
}`

type locatorArg struct {
	Selector string `json:"selector"`
	Child    string `json:"child,omitempty"`
	Text     string `json:"text,omitempty"`
	Nth      int    `json:"nth"`
}

func jsonArg(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// Only plain strings and structs of strings are encoded here.
		panic(fmt.Sprintf("browser: cannot encode script argument: %v", err))
	}
	return string(b)
}

func locatorScript(body string, loc Locator, extra ...any) string {
	args := []string{jsonArg(locatorArg{Selector: loc.Selector, Child: loc.Child, Text: loc.Text, Nth: loc.Nth})}
	for _, e := range extra {
		args = append(args, jsonArg(e))
	}
	return fmt.Sprintf("(function(loc, arg) {\n%s\n%s\n})(%s)", resolveJS, body, strings.Join(args, ", "))
}

// countScript evaluates to the number of candidates.
func countScript(loc Locator) string {
	return locatorScript(`return __regressResolve(loc).length;`, loc)
}

// visibleScript evaluates to true when the picked candidate is rendered.
func visibleScript(loc Locator) string {
	return locatorScript(`return __regressVisible(__regressPick(loc));`, loc)
}

// markScript tags the picked candidate with token and evaluates to whether one was found.
func markScript(loc Locator, token string) string {
	return locatorScript(fmt.Sprintf(`const el = __regressPick(loc);
if (!el) { return false; }
el.setAttribute(%q, arg);
return true;`, markerAttribute), loc, token)
}

func unmarkScript(token string) string {
	return fmt.Sprintf(`(function(token) {
	for (const el of document.querySelectorAll('[%s]')) {
		if (el.getAttribute(%q) === token) { el.removeAttribute(%q); }
	}
	return true;
})(%s)`, markerAttribute, markerAttribute, markerAttribute, jsonArg(token))
}

func markedSelector(token string) string {
	return fmt.Sprintf(`[%s=%s]`, markerAttribute, jsonArg(token))
}

// closeDialogsScript closes every open dialog matching selector, then strips
// the open attribute even when close() is unavailable or ignored.
func closeDialogsScript(selector string) string {
	return fmt.Sprintf(`(function(sel) {
	let touched = 0;
	for (const dialog of document.querySelectorAll(sel)) {
		if (!dialog.hasAttribute('open')) { continue; }
		try {
			if (typeof dialog.close === 'function') { dialog.close(); }
		} catch (e) { /* fall through to attribute removal */ }
		dialog.removeAttribute('open');
		touched++;
	}
	return touched;
})(%s)`, jsonArg(selector))
}

func removeElementsScript(selector string) string {
	return fmt.Sprintf(`(function(sel) {
	const nodes = Array.from(document.querySelectorAll(sel));
	for (const node of nodes) { node.remove(); }
	return nodes.length;
})(%s)`, jsonArg(selector))
}

const localStorageJS = `(function() {
	const items = [];
	try {
		for (let i = 0; i < window.localStorage.length; i++) {
			const name = window.localStorage.key(i);
			if (name !== null) { items.push({ name: name, value: window.localStorage.getItem(name) }); }
		}
	} catch (e) { /* storage disabled */ }
	return { origin: window.location.origin, localStorage: items };
})()`

// indexedDBJS resolves to the origin's databases. It rejects when the
// browser cannot enumerate databases, which callers treat as "unsupported".
const indexedDBJS = `(async function() {
	if (!window.indexedDB || typeof window.indexedDB.databases !== 'function') {
		throw new Error('indexedDB.databases is not supported');
	}
	const req = (r) => new Promise((resolve, reject) => {
		r.onsuccess = () => resolve(r.result);
		r.onerror = () => reject(r.error);
	});
	// Compound key paths are kept as arrays so they restore as compound keys.
	const keyPathOf = (kp) => Array.isArray(kp) ? { keyPathArray: kp } : (kp ? { keyPath: kp } : {});
	const out = [];
	for (const info of await window.indexedDB.databases()) {
		if (!info.name) { continue; }
		const db = await req(window.indexedDB.open(info.name));
		const stores = [];
		for (const storeName of Array.from(db.objectStoreNames)) {
			const tx = db.transaction(storeName, 'readonly');
			const store = tx.objectStore(storeName);
			const keys = await req(store.getAllKeys());
			const values = await req(store.getAll());
			const indexes = Array.from(store.indexNames).map((n) => {
				const idx = store.index(n);
				return Object.assign({ name: n, multiEntry: idx.multiEntry, unique: idx.unique }, keyPathOf(idx.keyPath));
			});
			stores.push(Object.assign({
				name: storeName,
				autoIncrement: store.autoIncrement,
				indexes: indexes,
				records: values.map((v, i) => ({ key: store.keyPath ? undefined : keys[i], value: v })),
			}, keyPathOf(store.keyPath)));
		}
		db.close();
		out.push({ name: info.name, version: db.version, stores: stores });
	}
	return out;
})()`

// restoreOriginScript seeds localStorage and IndexedDB for one origin the
// first time a document of that origin loads in this tab.
func restoreOriginScript(origin string, state any) string {
	return fmt.Sprintf(`(function(origin, state) {
	if (window.location.origin !== origin) { return; }
	try {
		if (window.sessionStorage.getItem('__regress_restored') === '1') { return; }
		window.sessionStorage.setItem('__regress_restored', '1');
	} catch (e) { return; }
	for (const item of (state.localStorage || [])) {
		try { window.localStorage.setItem(item.name, item.value); } catch (e) { /* quota */ }
	}
	for (const db of (state.indexedDB || [])) {
		const open = window.indexedDB.open(db.name, db.version);
		const keyPathOf = (x) => (x.keyPathArray && x.keyPathArray.length) ? x.keyPathArray : (x.keyPath || null);
		open.onupgradeneeded = () => {
			const conn = open.result;
			for (const s of db.stores) {
				if (conn.objectStoreNames.contains(s.name)) { continue; }
				const keyPath = keyPathOf(s);
				const store = conn.createObjectStore(s.name, keyPath ? { keyPath: keyPath, autoIncrement: s.autoIncrement } : { autoIncrement: s.autoIncrement });
				for (const idx of (s.indexes || [])) {
					store.createIndex(idx.name, keyPathOf(idx), { unique: idx.unique, multiEntry: idx.multiEntry });
				}
			}
		};
		open.onsuccess = () => {
			const conn = open.result;
			for (const s of db.stores) {
				if (!conn.objectStoreNames.contains(s.name)) { continue; }
				const tx = conn.transaction(s.name, 'readwrite');
				const store = tx.objectStore(s.name);
				for (const r of (s.records || [])) {
					if (keyPathOf(s) || r.key === undefined) { store.put(r.value); } else { store.put(r.value, r.key); }
				}
			}
			conn.close();
		};
	}
})(%s, %s)`, jsonArg(origin), jsonArg(state))
}
