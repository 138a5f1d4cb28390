package authflow

const successPage = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>EventosTec</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4em;">
  <h1>Sesión iniciada</h1>
  <p>Ya puedes cerrar esta ventana y volver a la aplicación.</p>
  <script>setTimeout(function() { window.close(); }, 3000);</script>
</body>
</html>`

const errorPage = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>EventosTec</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4em;">
  <h1>No se pudo iniciar sesión</h1>
  <p>%s</p>
  <p>Cierra esta ventana e inténtalo de nuevo desde la aplicación.</p>
</body>
</html>`
